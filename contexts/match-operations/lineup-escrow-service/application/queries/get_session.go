package queries

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/services"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

type GetSessionQuery struct {
	EscrowID string
	Viewer   services.ViewerIdentity
}

type GetSessionResult struct {
	Projection services.SessionProjection
}

type GetSessionUseCase struct {
	Sessions    ports.SessionRepository
	Views       ports.ViewLedger
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

// Execute serves the authenticated dashboard detail. Access is limited to
// the initiator and members of either linked team; what each of them sees
// is decided by the visibility projection, never here.
func (u GetSessionUseCase) Execute(ctx context.Context, query GetSessionQuery) (GetSessionResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(query.EscrowID) == "" {
		return GetSessionResult{}, fmt.Errorf("%w: session id is required", domainerrors.ErrValidation)
	}
	now := u.now()

	session, err := u.Sessions.GetSession(ctx, query.EscrowID)
	if err != nil {
		return GetSessionResult{}, err
	}

	if !u.authorized(session, query.Viewer) {
		logger.Warn("get session denied",
			"event", "get_session_denied",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"user_id", query.Viewer.UserID,
		)
		return GetSessionResult{}, domainerrors.ErrUnauthorized
	}

	session, err = application.ExpireIfOverdue(ctx, u.Sessions, u.IDGenerator, session, now)
	if err != nil {
		return GetSessionResult{}, err
	}

	// Resolved sessions keep an audit trail of dashboard reads too.
	if session.Status == entities.SessionStatusCompleted || session.Status == entities.SessionStatusExpired {
		u.recordView(ctx, session, query.Viewer)
	}

	projection := services.ProjectSession(session, query.Viewer)

	logger.Info("get session completed",
		"event", "get_session_completed",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"session_id", session.EscrowID,
		"status", session.Status,
	)

	return GetSessionResult{Projection: projection}, nil
}

func (u GetSessionUseCase) authorized(session entities.EscrowSession, viewer services.ViewerIdentity) bool {
	if session.IsInitiator(viewer.UserID) {
		return true
	}
	return viewer.OnTeam(session.InitiatorTeamID) || viewer.OnTeam(session.RecipientTeamID)
}

func (u GetSessionUseCase) recordView(ctx context.Context, session entities.EscrowSession, viewer services.ViewerIdentity) {
	logger := application.ResolveLogger(u.Logger)
	viewID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		logger.Warn("view record skipped",
			"event", "get_session_view_record_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
		return
	}
	view := entities.EscrowView{
		ViewID:       viewID,
		EscrowID:     session.EscrowID,
		ViewerUserID: viewer.UserID,
		ViewedAt:     u.now(),
		IPAddress:    viewer.IPAddress,
	}
	if err := u.Views.RecordView(ctx, view); err != nil {
		logger.Warn("view record skipped",
			"event", "get_session_view_record_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
	}
}

func (u GetSessionUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
