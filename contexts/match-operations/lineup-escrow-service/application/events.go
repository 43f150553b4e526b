package application

import (
	"strings"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

const (
	SessionCreatedEventType   = "escrow.created"
	SessionCompletedEventType = "escrow.completed"
	SessionExpiredEventType   = "escrow.expired"
	SessionCancelledEventType = "escrow.cancelled"
)

// NewSessionEvent builds the outbox payload for a session transition.
// Partitioning by escrow id keeps per-session ordering on the topic.
func NewSessionEvent(eventID, eventType string, status entities.SessionStatus, session entities.EscrowSession, occurredAt time.Time) ports.EscrowEvent {
	return ports.EscrowEvent{
		EventID:         eventID,
		EventType:       eventType,
		EscrowID:        session.EscrowID,
		Status:          string(status),
		InitiatorTeamID: session.InitiatorTeamID,
		RecipientTeamID: session.RecipientTeamID,
		PartitionKey:    session.EscrowID,
		OccurredAt:      occurredAt,
		ExpiresAt:       session.ExpiresAt,
	}
}

// ShareURL renders the recipient-facing exchange link for a session token.
func ShareURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/escrow/exchange/" + token
}
