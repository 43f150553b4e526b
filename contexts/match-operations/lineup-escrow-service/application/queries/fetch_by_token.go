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

type FetchByTokenQuery struct {
	Token     string
	IPAddress string
}

type FetchByTokenResult struct {
	Projection services.SessionProjection
}

type FetchByTokenUseCase struct {
	Sessions    ports.SessionRepository
	Views       ports.ViewLedger
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

// Execute resolves the capability token to its session, settles lazy expiry,
// appends the audit row, and returns the token holder's projection. The
// response leaks nothing about whether an unknown token ever existed.
func (u FetchByTokenUseCase) Execute(ctx context.Context, query FetchByTokenQuery) (FetchByTokenResult, error) {
	logger := application.ResolveLogger(u.Logger)
	token := strings.TrimSpace(query.Token)
	if token == "" {
		return FetchByTokenResult{}, fmt.Errorf("%w: token is required", domainerrors.ErrInvalidToken)
	}
	now := u.now()

	session, err := u.Sessions.GetSessionByToken(ctx, token)
	if err != nil {
		logger.Warn("fetch by token not resolved",
			"event", "fetch_by_token_not_resolved",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"error", err.Error(),
		)
		return FetchByTokenResult{}, err
	}

	session, err = application.ExpireIfOverdue(ctx, u.Sessions, u.IDGenerator, session, now)
	if err != nil {
		return FetchByTokenResult{}, err
	}

	u.recordView(ctx, session, query.IPAddress)

	viewer := services.ViewerIdentity{
		Contact:   session.RecipientContact,
		IPAddress: query.IPAddress,
		ViaToken:  true,
	}
	projection := services.ProjectSession(session, viewer)

	logger.Info("fetch by token completed",
		"event", "fetch_by_token_completed",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"session_id", session.EscrowID,
		"status", session.Status,
	)

	return FetchByTokenResult{Projection: projection}, nil
}

// recordView appends the audit row for this token access. Ledger failures
// never fail the read.
func (u FetchByTokenUseCase) recordView(ctx context.Context, session entities.EscrowSession, ipAddress string) {
	logger := application.ResolveLogger(u.Logger)
	viewID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		logger.Warn("view record skipped",
			"event", "fetch_by_token_view_record_failed",
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
			"event", "fetch_by_token_view_record_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
	}
}

func (u FetchByTokenUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
