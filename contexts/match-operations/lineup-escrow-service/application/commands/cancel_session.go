package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

type CancelSessionCommand struct {
	EscrowID string
	UserID   string
}

type CancelSessionResult struct {
	Session entities.EscrowSession
}

type CancelSessionUseCase struct {
	Sessions    ports.SessionRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

// Execute withdraws a pending session. Only the initiator may cancel, and
// only while the session is still pending and inside its deadline.
func (u CancelSessionUseCase) Execute(ctx context.Context, cmd CancelSessionCommand) (CancelSessionResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.EscrowID) == "" || strings.TrimSpace(cmd.UserID) == "" {
		return CancelSessionResult{}, fmt.Errorf("%w: session id and user id are required", domainerrors.ErrValidation)
	}
	now := u.now()

	session, err := u.Sessions.GetSession(ctx, cmd.EscrowID)
	if err != nil {
		return CancelSessionResult{}, err
	}
	if !session.IsInitiator(cmd.UserID) {
		logger.Warn("cancel session denied",
			"event", "cancel_session_denied",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"user_id", cmd.UserID,
		)
		return CancelSessionResult{}, domainerrors.ErrUnauthorized
	}

	session, err = application.ExpireIfOverdue(ctx, u.Sessions, u.IDGenerator, session, now)
	if err != nil {
		return CancelSessionResult{}, err
	}
	switch session.Status {
	case entities.SessionStatusCompleted:
		return CancelSessionResult{}, domainerrors.ErrAlreadySubmitted
	case entities.SessionStatusCancelled:
		return CancelSessionResult{}, domainerrors.ErrAlreadyCancelled
	case entities.SessionStatusExpired:
		return CancelSessionResult{}, domainerrors.ErrExpired
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return CancelSessionResult{}, err
	}
	event := application.NewSessionEvent(eventID, application.SessionCancelledEventType, entities.SessionStatusCancelled, session, now)

	updated, err := u.Sessions.CancelSession(ctx, session.EscrowID, now, event)
	if err != nil {
		logger.Warn("cancel session lost resolution race",
			"event", "cancel_session_not_applied",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
		return CancelSessionResult{}, err
	}

	logger.Info("cancel session completed",
		"event", "lineup_escrow_session_cancelled",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"session_id", updated.EscrowID,
		"user_id", cmd.UserID,
	)

	return CancelSessionResult{Session: updated}, nil
}

func (u CancelSessionUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
