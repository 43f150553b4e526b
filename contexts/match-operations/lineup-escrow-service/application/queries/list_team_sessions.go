package queries

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/services"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

type ListTeamSessionsQuery struct {
	TeamID string
	Viewer services.ViewerIdentity
	Cursor string
	Limit  int
}

type ListTeamSessionsResult struct {
	Items      []services.SessionProjection
	NextCursor string
}

type ListTeamSessionsUseCase struct {
	Sessions    ports.SessionRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

// Execute lists a team's sessions for the dashboard. Listings are metadata
// only regardless of who asks; lineups are served by the detail and token
// endpoints, where per-viewer visibility applies.
func (u ListTeamSessionsUseCase) Execute(ctx context.Context, query ListTeamSessionsQuery) (ListTeamSessionsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if query.TeamID == "" {
		return ListTeamSessionsResult{}, fmt.Errorf("%w: team id is required", domainerrors.ErrValidation)
	}
	if !query.Viewer.OnTeam(query.TeamID) {
		logger.Warn("list team sessions denied",
			"event", "list_team_sessions_denied",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"team_id", query.TeamID,
			"user_id", query.Viewer.UserID,
		)
		return ListTeamSessionsResult{}, domainerrors.ErrUnauthorized
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	now := u.now()

	logger.Info("list team sessions started",
		"event", "list_team_sessions_started",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"team_id", query.TeamID,
		"limit", limit,
	)

	sessions, nextCursor, err := u.Sessions.ListSessionsByTeam(ctx, ports.SessionListFilter{
		TeamID: query.TeamID,
		Cursor: query.Cursor,
		Limit:  limit,
	})
	if err != nil {
		logger.Error("list team sessions failed",
			"event", "list_team_sessions_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"team_id", query.TeamID,
			"error", err.Error(),
		)
		return ListTeamSessionsResult{}, err
	}

	items := make([]services.SessionProjection, 0, len(sessions))
	for _, session := range sessions {
		// Deadlines that passed between sweeps settle on read here too.
		session, err = application.ExpireIfOverdue(ctx, u.Sessions, u.IDGenerator, session, now)
		if err != nil {
			return ListTeamSessionsResult{}, err
		}
		items = append(items, services.ProjectSession(session, services.ViewerIdentity{}))
	}

	logger.Info("list team sessions completed",
		"event", "list_team_sessions_completed",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"team_id", query.TeamID,
		"items_count", len(items),
		"has_next_cursor", nextCursor != "",
	)

	return ListTeamSessionsResult{
		Items:      items,
		NextCursor: nextCursor,
	}, nil
}

func (u ListTeamSessionsUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
