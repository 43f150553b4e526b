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

type ListViewsQuery struct {
	EscrowID string
	UserID   string
}

type ListViewsResult struct {
	Items []entities.EscrowView
}

type ListViewsUseCase struct {
	Sessions ports.SessionRepository
	Views    ports.ViewLedger
	Logger   *slog.Logger
}

// Execute returns a session's access audit trail, oldest first. Only the
// initiator may read it.
func (u ListViewsUseCase) Execute(ctx context.Context, query ListViewsQuery) (ListViewsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(query.EscrowID) == "" {
		return ListViewsResult{}, fmt.Errorf("%w: session id is required", domainerrors.ErrValidation)
	}

	session, err := u.Sessions.GetSession(ctx, query.EscrowID)
	if err != nil {
		return ListViewsResult{}, err
	}
	if !session.IsInitiator(query.UserID) {
		logger.Warn("list views denied",
			"event", "list_views_denied",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"user_id", query.UserID,
		)
		return ListViewsResult{}, domainerrors.ErrUnauthorized
	}

	views, err := u.Views.ListViews(ctx, session.EscrowID)
	if err != nil {
		logger.Error("list views failed",
			"event", "list_views_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
		return ListViewsResult{}, err
	}

	logger.Info("list views completed",
		"event", "list_views_completed",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"session_id", session.EscrowID,
		"items_count", len(views),
	)

	return ListViewsResult{Items: views}, nil
}
