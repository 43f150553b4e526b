package application

import (
	"context"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

// ExpireIfOverdue lazily settles a pending session whose deadline has
// passed, so reads observe the expired state even between sweeper runs.
// It returns the authoritative row after the attempt; when a concurrent
// writer resolved the session first, that writer's state comes back.
func ExpireIfOverdue(
	ctx context.Context,
	sessions ports.SessionRepository,
	ids ports.IDGenerator,
	session entities.EscrowSession,
	now time.Time,
) (entities.EscrowSession, error) {
	if !session.Overdue(now) {
		return session, nil
	}

	eventID, err := ids.NewID(ctx)
	if err != nil {
		return session, err
	}
	event := NewSessionEvent(eventID, SessionExpiredEventType, entities.SessionStatusExpired, session, now)
	if _, err := sessions.ExpireSession(ctx, session.EscrowID, now, event); err != nil {
		return session, err
	}
	return sessions.GetSession(ctx, session.EscrowID)
}
