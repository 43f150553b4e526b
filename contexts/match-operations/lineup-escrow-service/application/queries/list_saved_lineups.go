package queries

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

type ListSavedLineupsQuery struct {
	UserID string
	TeamID string
}

type ListSavedLineupsResult struct {
	Items []entities.SavedLineup
}

type ListSavedLineupsUseCase struct {
	SavedLineups ports.SavedLineupRepository
	Logger       *slog.Logger
}

func (u ListSavedLineupsUseCase) Execute(ctx context.Context, query ListSavedLineupsQuery) (ListSavedLineupsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(query.UserID) == "" || strings.TrimSpace(query.TeamID) == "" {
		return ListSavedLineupsResult{}, fmt.Errorf("%w: user id and team id are required", domainerrors.ErrValidation)
	}

	items, err := u.SavedLineups.ListSavedLineups(ctx, query.UserID, query.TeamID)
	if err != nil {
		logger.Error("list saved lineups failed",
			"event", "list_saved_lineups_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"user_id", query.UserID,
			"team_id", query.TeamID,
			"error", err.Error(),
		)
		return ListSavedLineupsResult{}, err
	}

	logger.Info("list saved lineups completed",
		"event", "list_saved_lineups_completed",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"user_id", query.UserID,
		"team_id", query.TeamID,
		"items_count", len(items),
	)

	return ListSavedLineupsResult{Items: items}, nil
}
