package commands

import (
	"context"
	"log/slog"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

type SaveLineupCommand struct {
	UserID string
	TeamID string
	Name   string
	Lineup []string
}

type SaveLineupResult struct {
	SavedLineup entities.SavedLineup
}

type SaveLineupUseCase struct {
	SavedLineups ports.SavedLineupRepository
	Clock        ports.Clock
	Logger       *slog.Logger
}

// Execute stores a reusable lineup template, replacing any previous template
// with the same (user, team, name) key.
func (u SaveLineupUseCase) Execute(ctx context.Context, cmd SaveLineupCommand) (SaveLineupResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	saved, err := entities.NewSavedLineup(cmd.UserID, cmd.TeamID, cmd.Name, cmd.Lineup, now)
	if err != nil {
		logger.Warn("save lineup rejected",
			"event", "save_lineup_rejected",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"team_id", cmd.TeamID,
			"error", err.Error(),
		)
		return SaveLineupResult{}, err
	}

	if err := u.SavedLineups.UpsertSavedLineup(ctx, saved); err != nil {
		logger.Error("save lineup failed",
			"event", "save_lineup_write_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"team_id", cmd.TeamID,
			"error", err.Error(),
		)
		return SaveLineupResult{}, err
	}

	logger.Info("save lineup completed",
		"event", "lineup_escrow_saved_lineup_stored",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"team_id", cmd.TeamID,
		"name", saved.Name,
	)

	return SaveLineupResult{SavedLineup: saved}, nil
}

func (u SaveLineupUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
