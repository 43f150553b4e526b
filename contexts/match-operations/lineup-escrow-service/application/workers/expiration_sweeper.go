package workers

import (
	"context"
	"log/slog"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

// ExpirationSweeper settles pending sessions that crossed expires_at, the
// authoritative backstop behind lazy expiry on reads.
type ExpirationSweeper struct {
	Sessions    ports.SessionRepository
	IDGenerator ports.IDGenerator
	Clock       ports.Clock
	BatchSize   int
	Logger      *slog.Logger
}

func (s ExpirationSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}

	overdue, err := s.Sessions.ListOverdueSessions(ctx, now, limit)
	if err != nil {
		logger.Error("expiry sweep listing failed",
			"event", "lineup_escrow_expiry_sweep_list_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	expired := 0
	for _, session := range overdue {
		eventID, err := s.IDGenerator.NewID(ctx)
		if err != nil {
			return err
		}
		event := application.NewSessionEvent(eventID, application.SessionExpiredEventType, entities.SessionStatusExpired, session, now)
		applied, err := s.Sessions.ExpireSession(ctx, session.EscrowID, now, event)
		if err != nil {
			logger.Error("expiry sweep transition failed",
				"event", "lineup_escrow_expiry_sweep_transition_failed",
				"module", "match-operations/lineup-escrow-service",
				"layer", "worker",
				"session_id", session.EscrowID,
				"error", err.Error(),
			)
			return err
		}
		// A submit or lazy-expire read may have resolved the row first.
		if applied {
			expired++
		}
	}

	if expired > 0 {
		logger.Info("expiry sweep completed",
			"event", "lineup_escrow_expiry_sweep_completed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"expired_count", expired,
		)
	}
	return nil
}
