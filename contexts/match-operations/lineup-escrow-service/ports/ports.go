package ports

import (
	"context"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/internal/shared/events"
)

// SessionListFilter defines read-side pagination for team-scoped listings.
type SessionListFilter struct {
	TeamID string
	Cursor string
	Limit  int
}

// EscrowEvent is the outbound integration payload persisted to the outbox
// alongside the transition that produced it. It carries session metadata
// only; lineups, tokens, and contact values never leave the service.
type EscrowEvent struct {
	EventID         string
	EventType       string
	EscrowID        string
	Status          string
	InitiatorTeamID string
	RecipientTeamID string
	PartitionKey    string
	OccurredAt      time.Time
	ExpiresAt       time.Time
}

// SessionRepository owns escrow session persistence and the transaction
// boundaries that couple each state transition with its outbox event.
//
// CompleteSession and CancelSession are single conditional updates keyed on
// status='pending' (and, for cancel, the deadline). When the precondition no
// longer holds they re-read the row and classify the failure as
// ErrAlreadySubmitted, ErrExpired, or ErrAlreadyCancelled, so exactly one of
// N racing writers wins and the rest fail deterministically.
type SessionRepository interface {
	GetSessionByToken(ctx context.Context, token string) (entities.EscrowSession, error)
	GetSession(ctx context.Context, escrowID string) (entities.EscrowSession, error)
	ListSessionsByTeam(ctx context.Context, filter SessionListFilter) ([]entities.EscrowSession, string, error)
	// CreateSessionWithOutbox must atomically persist the session and its
	// escrow.created outbox event.
	CreateSessionWithOutbox(ctx context.Context, session entities.EscrowSession, event EscrowEvent) error
	CompleteSession(ctx context.Context, escrowID string, lineup entities.Lineup, submittedAt time.Time, event EscrowEvent) (entities.EscrowSession, error)
	CancelSession(ctx context.Context, escrowID string, cancelledAt time.Time, event EscrowEvent) (entities.EscrowSession, error)
	// ExpireSession applies pending->expired when the deadline has passed.
	// A false return means another writer resolved the session first.
	ExpireSession(ctx context.Context, escrowID string, expiredAt time.Time, event EscrowEvent) (bool, error)
	ListOverdueSessions(ctx context.Context, now time.Time, limit int) ([]entities.EscrowSession, error)
	// ListNotificationDue returns sessions owing at least one dispatch per
	// the notification policy: pending invites not yet overdue, completed
	// and expired sessions with un-flipped party flags.
	ListNotificationDue(ctx context.Context, now time.Time, limit int) ([]entities.EscrowSession, error)
	// MarkNotified flips one party's notified flag, false to true only.
	// A false return means the flag was already set.
	MarkNotified(ctx context.Context, escrowID string, party entities.Party, notifiedAt time.Time) (bool, error)
}

// ViewLedger persists the append-only access audit trail. RecordView
// failures must never fail the read that triggered them.
type ViewLedger interface {
	RecordView(ctx context.Context, view entities.EscrowView) error
	ListViews(ctx context.Context, escrowID string) ([]entities.EscrowView, error)
}

// SavedLineupRepository stores reusable lineup templates. Reads return
// active rows only; an inactive row behaves as deleted.
type SavedLineupRepository interface {
	UpsertSavedLineup(ctx context.Context, lineup entities.SavedLineup) error
	GetSavedLineup(ctx context.Context, userID, teamID, name string) (entities.SavedLineup, error)
	ListSavedLineups(ctx context.Context, userID, teamID string) ([]entities.SavedLineup, error)
}

// IdempotencyRecord captures dedupe metadata for session creation.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	EscrowID    string
	ExpiresAt   time.Time
}

// IdempotencyStore abstracts idempotency persistence with TTL handling.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

// TokenIssuer mints the opaque capability credential for the recipient
// path. Tokens are high-entropy, never reused, never regenerated.
type TokenIssuer interface {
	MintToken(ctx context.Context) (string, error)
}

// NotificationService is the external delivery collaborator. Send addresses
// a raw contact over a channel; SendToUser addresses a league member by id
// (the collaborator owns user-to-contact resolution and all retry policy).
// A nil return is a delivery acknowledgment.
type NotificationService interface {
	Send(ctx context.Context, contact string, channel entities.ContactType, subject, body string) error
	SendToUser(ctx context.Context, userID, subject, body string) error
}

// Clock allows deterministic testing of expiry rules.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts session/view/event identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventEnvelope reuses the canonical cross-service envelope.
type EventEnvelope = events.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
