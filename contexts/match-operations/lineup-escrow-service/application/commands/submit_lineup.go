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
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/services"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

type SubmitLineupCommand struct {
	Token     string
	Lineup    []string
	IPAddress string
}

// SubmitLineupResult carries the resolved session projected for the token
// holder: on success both lineups are present.
type SubmitLineupResult struct {
	Projection services.SessionProjection
}

type SubmitLineupUseCase struct {
	Sessions    ports.SessionRepository
	Views       ports.ViewLedger
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

// Execute resolves the token, settles lazy expiry, and races the session to
// completed through a single conditional update. Exactly one submission can
// win; any later attempt fails with the state that beat it.
func (u SubmitLineupUseCase) Execute(ctx context.Context, cmd SubmitLineupCommand) (SubmitLineupResult, error) {
	logger := application.ResolveLogger(u.Logger)
	token := strings.TrimSpace(cmd.Token)
	if token == "" {
		return SubmitLineupResult{}, fmt.Errorf("%w: token is required", domainerrors.ErrInvalidToken)
	}
	now := u.now()

	session, err := u.Sessions.GetSessionByToken(ctx, token)
	if err != nil {
		logger.Warn("submit lineup token not resolved",
			"event", "submit_lineup_token_not_resolved",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"error", err.Error(),
		)
		return SubmitLineupResult{}, err
	}

	logger.Info("submit lineup started",
		"event", "submit_lineup_started",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"session_id", session.EscrowID,
	)

	session, err = application.ExpireIfOverdue(ctx, u.Sessions, u.IDGenerator, session, now)
	if err != nil {
		return SubmitLineupResult{}, err
	}

	u.recordView(ctx, session, cmd.IPAddress)

	switch session.Status {
	case entities.SessionStatusCompleted:
		return SubmitLineupResult{}, domainerrors.ErrAlreadySubmitted
	case entities.SessionStatusCancelled:
		return SubmitLineupResult{}, domainerrors.ErrAlreadyCancelled
	case entities.SessionStatusExpired:
		return SubmitLineupResult{}, domainerrors.ErrExpired
	}

	lineup, err := entities.NormalizeLineup(cmd.Lineup)
	if err != nil {
		logger.Warn("submit lineup rejected",
			"event", "submit_lineup_rejected",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
		return SubmitLineupResult{}, err
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return SubmitLineupResult{}, err
	}
	event := application.NewSessionEvent(eventID, application.SessionCompletedEventType, entities.SessionStatusCompleted, session, now)

	updated, err := u.Sessions.CompleteSession(ctx, session.EscrowID, lineup, now, event)
	if err != nil {
		logger.Warn("submit lineup lost resolution race",
			"event", "submit_lineup_not_applied",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
		return SubmitLineupResult{}, err
	}

	logger.Info("submit lineup completed",
		"event", "lineup_escrow_session_completed",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"session_id", updated.EscrowID,
		"initiator_team_id", updated.InitiatorTeamID,
		"recipient_team_id", updated.RecipientTeamID,
	)

	viewer := services.ViewerIdentity{
		Contact:   updated.RecipientContact,
		IPAddress: cmd.IPAddress,
		ViaToken:  true,
	}
	return SubmitLineupResult{Projection: services.ProjectSession(updated, viewer)}, nil
}

// recordView appends the audit row for this token access. Ledger failures
// never fail the submission itself.
func (u SubmitLineupUseCase) recordView(ctx context.Context, session entities.EscrowSession, ipAddress string) {
	logger := application.ResolveLogger(u.Logger)
	viewID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		logger.Warn("view record skipped",
			"event", "submit_lineup_view_record_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
		return
	}
	view := entities.EscrowView{
		ViewID:        viewID,
		EscrowID:      session.EscrowID,
		ViewerContact: session.RecipientContact,
		ViewedAt:      u.now(),
		IPAddress:     ipAddress,
	}
	if err := u.Views.RecordView(ctx, view); err != nil {
		logger.Warn("view record skipped",
			"event", "submit_lineup_view_record_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
	}
}

func (u SubmitLineupUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
