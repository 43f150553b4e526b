package memory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

// Store is an in-memory adapter implementing the escrow ports for local
// runtime and tests. It is not intended as production persistence.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]entities.EscrowSession
	sessionsByTok map[string]string
	views         map[string][]entities.EscrowView
	savedLineups  map[string]entities.SavedLineup
	idempotency   map[string]ports.IdempotencyRecord
	outbox        map[string]ports.OutboxMessage
	outboxOrder   []string
	outboxSent    map[string]time.Time
	sequence      uint64
	logger        *slog.Logger
}

// NewStore seeds session state and initializes the remaining stores.
func NewStore(seedSessions []entities.EscrowSession, logger *slog.Logger) *Store {
	sessionMap := make(map[string]entities.EscrowSession, len(seedSessions))
	tokenIndex := make(map[string]string, len(seedSessions))
	for _, session := range seedSessions {
		sessionMap[session.EscrowID] = cloneSession(session)
		tokenIndex[session.Token] = session.EscrowID
	}
	return &Store{
		sessions:      sessionMap,
		sessionsByTok: tokenIndex,
		views:         make(map[string][]entities.EscrowView),
		savedLineups:  make(map[string]entities.SavedLineup),
		idempotency:   make(map[string]ports.IdempotencyRecord),
		outbox:        make(map[string]ports.OutboxMessage),
		outboxOrder:   make([]string, 0),
		outboxSent:    make(map[string]time.Time),
		logger:        application.ResolveLogger(logger),
	}
}

func (s *Store) GetSessionByToken(_ context.Context, token string) (entities.EscrowSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	escrowID, ok := s.sessionsByTok[token]
	if !ok {
		return entities.EscrowSession{}, domainerrors.ErrInvalidToken
	}
	session, exists := s.sessions[escrowID]
	if !exists {
		return entities.EscrowSession{}, domainerrors.ErrRepositoryInvariantBroke
	}
	return cloneSession(session), nil
}

func (s *Store) GetSession(_ context.Context, escrowID string) (entities.EscrowSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[escrowID]
	if !ok {
		return entities.EscrowSession{}, domainerrors.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) ListSessionsByTeam(_ context.Context, filter ports.SessionListFilter) ([]entities.EscrowSession, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []entities.EscrowSession
	for _, session := range s.sessions {
		if session.InitiatorTeamID != filter.TeamID && session.RecipientTeamID != filter.TeamID {
			continue
		}
		filtered = append(filtered, session)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].EscrowID < filtered[j].EscrowID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := decodeCursor(filter.Cursor)
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + filter.Limit
	if filter.Limit <= 0 {
		end = start + 20
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	page := make([]entities.EscrowSession, 0, end-start)
	for _, session := range filtered[start:end] {
		page = append(page, cloneSession(session))
	}
	nextCursor := ""
	if end < len(filtered) {
		nextCursor = encodeCursor(end)
	}

	s.logger.Debug("sessions listed from memory store",
		"event", "memory_list_sessions",
		"module", "match-operations/lineup-escrow-service",
		"layer", "adapter",
		"team_id", filter.TeamID,
		"start", start,
		"end", end,
		"total", len(filtered),
	)

	return page, nextCursor, nil
}

func (s *Store) CreateSessionWithOutbox(_ context.Context, session entities.EscrowSession, event ports.EscrowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A single mutex critical section approximates transactional semantics:
	// session insert and outbox append succeed/fail together.
	if _, ok := s.sessions[session.EscrowID]; ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if _, ok := s.sessionsByTok[session.Token]; ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}

	s.sessions[session.EscrowID] = cloneSession(session)
	s.sessionsByTok[session.Token] = session.EscrowID
	if err := s.appendOutboxLocked(event); err != nil {
		return err
	}

	s.logger.Info("session and outbox persisted in memory store",
		"event", "memory_create_session_with_outbox",
		"module", "match-operations/lineup-escrow-service",
		"layer", "adapter",
		"session_id", session.EscrowID,
		"outbox_event_id", event.EventID,
	)

	return nil
}

func (s *Store) CompleteSession(
	_ context.Context,
	escrowID string,
	lineup entities.Lineup,
	submittedAt time.Time,
	event ports.EscrowEvent,
) (entities.EscrowSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[escrowID]
	if !ok {
		return entities.EscrowSession{}, domainerrors.ErrSessionNotFound
	}
	if err := classifyResolved(session); err != nil {
		return entities.EscrowSession{}, err
	}
	if !submittedAt.Before(session.ExpiresAt) {
		return entities.EscrowSession{}, domainerrors.ErrExpired
	}

	at := submittedAt.UTC()
	session.RecipientLineup = lineup.Clone()
	session.RecipientSubmittedAt = &at
	session.Status = entities.SessionStatusCompleted
	session.UpdatedAt = at
	s.sessions[escrowID] = session
	if err := s.appendOutboxLocked(event); err != nil {
		return entities.EscrowSession{}, err
	}

	return cloneSession(session), nil
}

func (s *Store) CancelSession(
	_ context.Context,
	escrowID string,
	cancelledAt time.Time,
	event ports.EscrowEvent,
) (entities.EscrowSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[escrowID]
	if !ok {
		return entities.EscrowSession{}, domainerrors.ErrSessionNotFound
	}
	if err := classifyResolved(session); err != nil {
		return entities.EscrowSession{}, err
	}
	if session.Overdue(cancelledAt) {
		return entities.EscrowSession{}, domainerrors.ErrExpired
	}

	session.Status = entities.SessionStatusCancelled
	session.UpdatedAt = cancelledAt.UTC()
	s.sessions[escrowID] = session
	if err := s.appendOutboxLocked(event); err != nil {
		return entities.EscrowSession{}, err
	}

	return cloneSession(session), nil
}

func (s *Store) ExpireSession(
	_ context.Context,
	escrowID string,
	expiredAt time.Time,
	event ports.EscrowEvent,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[escrowID]
	if !ok {
		return false, domainerrors.ErrSessionNotFound
	}
	if !session.Overdue(expiredAt) {
		return false, nil
	}

	session.Status = entities.SessionStatusExpired
	session.UpdatedAt = expiredAt.UTC()
	s.sessions[escrowID] = session
	if err := s.appendOutboxLocked(event); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListOverdueSessions(_ context.Context, now time.Time, limit int) ([]entities.EscrowSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var overdue []entities.EscrowSession
	for _, session := range s.sessions {
		if session.Overdue(now) {
			overdue = append(overdue, session)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if overdue[i].ExpiresAt.Equal(overdue[j].ExpiresAt) {
			return overdue[i].EscrowID < overdue[j].EscrowID
		}
		return overdue[i].ExpiresAt.Before(overdue[j].ExpiresAt)
	})
	if len(overdue) > limit {
		overdue = overdue[:limit]
	}
	out := make([]entities.EscrowSession, 0, len(overdue))
	for _, session := range overdue {
		out = append(out, cloneSession(session))
	}
	return out, nil
}

func (s *Store) ListNotificationDue(_ context.Context, now time.Time, limit int) ([]entities.EscrowSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var due []entities.EscrowSession
	for _, session := range s.sessions {
		if owesNotification(session, now) {
			due = append(due, session)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].UpdatedAt.Equal(due[j].UpdatedAt) {
			return due[i].EscrowID < due[j].EscrowID
		}
		return due[i].UpdatedAt.Before(due[j].UpdatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]entities.EscrowSession, 0, len(due))
	for _, session := range due {
		out = append(out, cloneSession(session))
	}
	return out, nil
}

func (s *Store) MarkNotified(_ context.Context, escrowID string, party entities.Party, notifiedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[escrowID]
	if !ok {
		return false, domainerrors.ErrSessionNotFound
	}

	switch party {
	case entities.PartyInitiator:
		if session.InitiatorNotified {
			return false, nil
		}
		session.InitiatorNotified = true
	case entities.PartyRecipient:
		if session.RecipientNotified {
			return false, nil
		}
		session.RecipientNotified = true
	default:
		return false, domainerrors.ErrRepositoryInvariantBroke
	}

	session.UpdatedAt = notifiedAt.UTC()
	s.sessions[escrowID] = session
	return true, nil
}

func (s *Store) RecordView(_ context.Context, view entities.EscrowView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[view.EscrowID]; !ok {
		return domainerrors.ErrSessionNotFound
	}
	view.ViewedAt = view.ViewedAt.UTC()
	s.views[view.EscrowID] = append(s.views[view.EscrowID], view)
	return nil
}

func (s *Store) ListViews(_ context.Context, escrowID string) ([]entities.EscrowView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := append([]entities.EscrowView(nil), s.views[escrowID]...)
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].ViewedAt.Before(views[j].ViewedAt)
	})
	return views, nil
}

func (s *Store) UpsertSavedLineup(_ context.Context, lineup entities.SavedLineup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := savedLineupKey(lineup.UserID, lineup.TeamID, lineup.Name)
	if existing, ok := s.savedLineups[key]; ok {
		lineup.CreatedAt = existing.CreatedAt
	}
	lineup.LineupData = lineup.LineupData.Clone()
	s.savedLineups[key] = lineup
	return nil
}

func (s *Store) GetSavedLineup(_ context.Context, userID, teamID, name string) (entities.SavedLineup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saved, ok := s.savedLineups[savedLineupKey(userID, teamID, name)]
	if !ok || !saved.IsActive {
		return entities.SavedLineup{}, domainerrors.ErrSavedLineupNotFound
	}
	saved.LineupData = saved.LineupData.Clone()
	return saved, nil
}

func (s *Store) ListSavedLineups(_ context.Context, userID, teamID string) ([]entities.SavedLineup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entities.SavedLineup, 0)
	for _, saved := range s.savedLineups {
		if saved.UserID != userID || saved.TeamID != teamID || !saved.IsActive {
			continue
		}
		saved.LineupData = saved.LineupData.Clone()
		result = append(result, saved)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	// Expired keys are lazily evicted on read.
	if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idempotency[record.Key]; ok {
		if existing.RequestHash != record.RequestHash {
			return domainerrors.ErrIdempotencyKeyConflict
		}
		return nil
	}
	s.idempotency[record.Key] = record
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if msg, ok := s.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("esc-%d", value), nil
}

// MintToken issues deterministic tokens, which keeps local flows and tests
// reproducible. Real deployments mint random tokens in the postgres wiring.
func (s *Store) MintToken(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("tok-%d", value), nil
}

// OutboxEvents exposes the full outbox in append order for assertions.
func (s *Store) OutboxEvents() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]ports.OutboxMessage, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		if evt, ok := s.outbox[id]; ok {
			events = append(events, evt)
		}
	}
	return events
}

func (s *Store) appendOutboxLocked(event ports.EscrowEvent) error {
	envelope := ports.EventEnvelope{
		EventID:       event.EventID,
		EventType:     event.EventType,
		OccurredAt:    event.OccurredAt,
		SourceService: "lineup-escrow-service",
		SchemaVersion: 1,
		PartitionKey:  event.PartitionKey,
	}
	data, err := json.Marshal(map[string]string{
		"escrow_id":         event.EscrowID,
		"status":            event.Status,
		"initiator_team_id": event.InitiatorTeamID,
		"recipient_team_id": event.RecipientTeamID,
		"expires_at":        event.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	envelope.Data = data
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	s.outbox[event.EventID] = ports.OutboxMessage{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt,
	}
	s.outboxOrder = append(s.outboxOrder, event.EventID)
	return nil
}

// classifyResolved maps an already-resolved session to the error the losing
// writer should see.
func classifyResolved(session entities.EscrowSession) error {
	switch session.Status {
	case entities.SessionStatusCompleted:
		return domainerrors.ErrAlreadySubmitted
	case entities.SessionStatusCancelled:
		return domainerrors.ErrAlreadyCancelled
	case entities.SessionStatusExpired:
		return domainerrors.ErrExpired
	default:
		return nil
	}
}

// owesNotification mirrors the dispatcher's due condition so paging matches
// the postgres adapter's WHERE clause.
func owesNotification(session entities.EscrowSession, now time.Time) bool {
	switch session.Status {
	case entities.SessionStatusPending:
		return !session.RecipientNotified && now.Before(session.ExpiresAt)
	case entities.SessionStatusCompleted:
		return !session.InitiatorNotified || !session.RecipientNotified
	case entities.SessionStatusExpired:
		return !session.InitiatorNotified
	default:
		return false
	}
}

func savedLineupKey(userID, teamID, name string) string {
	return strings.Join([]string{userID, teamID, name}, "|")
}

func cloneSession(session entities.EscrowSession) entities.EscrowSession {
	out := session
	out.InitiatorLineup = session.InitiatorLineup.Clone()
	out.RecipientLineup = session.RecipientLineup.Clone()
	if session.RecipientSubmittedAt != nil {
		at := *session.RecipientSubmittedAt
		out.RecipientSubmittedAt = &at
	}
	return out
}

func decodeCursor(cursor string) int {
	if strings.TrimSpace(cursor) == "" {
		return 0
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	index, err := strconv.Atoi(string(raw))
	if err != nil || index < 0 {
		return 0
	}
	return index
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}
