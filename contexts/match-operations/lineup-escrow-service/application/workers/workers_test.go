package workers_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/adapters/memory"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application/workers"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

var workerBase = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

type stubClock struct {
	now time.Time
}

func (c stubClock) Now() time.Time { return c.now }

type sentMessage struct {
	contact string
	userID  string
	subject string
	body    string
}

type stubNotifier struct {
	fail bool
	sent []sentMessage
}

func (n *stubNotifier) Send(_ context.Context, contact string, _ entities.ContactType, subject, body string) error {
	if n.fail {
		return errors.New("delivery refused")
	}
	n.sent = append(n.sent, sentMessage{contact: contact, subject: subject, body: body})
	return nil
}

func (n *stubNotifier) SendToUser(_ context.Context, userID, subject, body string) error {
	if n.fail {
		return errors.New("delivery refused")
	}
	n.sent = append(n.sent, sentMessage{userID: userID, subject: subject, body: body})
	return nil
}

type stubPublisher struct {
	fail      bool
	topics    []string
	envelopes []ports.EventEnvelope
}

func (p *stubPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.envelopes = append(p.envelopes, event)
	return nil
}

func seedSession(escrowID, token string, status entities.SessionStatus, expiresAt time.Time) entities.EscrowSession {
	return entities.EscrowSession{
		EscrowID:             escrowID,
		Token:                token,
		InitiatorUserID:      "user-init",
		InitiatorTeamID:      "team-home",
		RecipientName:        "Jordan Lee",
		RecipientContact:     "jordan@example.com",
		ContactType:          entities.ContactTypeEmail,
		InitiatorLineup:      entities.Lineup{"P1", "P2"},
		Status:               status,
		CreatedAt:            workerBase.Add(-time.Hour),
		InitiatorSubmittedAt: workerBase.Add(-time.Hour),
		ExpiresAt:            expiresAt,
		UpdatedAt:            workerBase.Add(-time.Hour),
	}
}

func TestExpirationSweeperSettlesOverdue(t *testing.T) {
	store := memory.NewStore([]entities.EscrowSession{
		seedSession("esc-overdue", "tok-overdue", entities.SessionStatusPending, workerBase.Add(-time.Minute)),
		seedSession("esc-live", "tok-live", entities.SessionStatusPending, workerBase.Add(time.Hour)),
	}, nil)

	sweeper := workers.ExpirationSweeper{
		Sessions:    store,
		IDGenerator: store,
		Clock:       stubClock{now: workerBase},
		BatchSize:   10,
	}

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep should succeed: %v", err)
	}

	settled, err := store.GetSession(context.Background(), "esc-overdue")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if settled.Status != entities.SessionStatusExpired {
		t.Fatalf("overdue session should expire, got %s", settled.Status)
	}

	live, err := store.GetSession(context.Background(), "esc-live")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if live.Status != entities.SessionStatusPending {
		t.Fatalf("session inside its window must stay pending, got %s", live.Status)
	}

	events := store.OutboxEvents()
	if len(events) != 1 || events[0].EventType != "escrow.expired" {
		t.Fatalf("expected one expiry outbox event, got %+v", events)
	}

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("repeat sweep should succeed: %v", err)
	}
	if count := len(store.OutboxEvents()); count != 1 {
		t.Fatalf("repeat sweep must not emit more events, got %d", count)
	}
}

func TestNotificationDispatcherSendsInviteOnce(t *testing.T) {
	store := memory.NewStore([]entities.EscrowSession{
		seedSession("esc-1", "tok-1", entities.SessionStatusPending, workerBase.Add(time.Hour)),
	}, nil)
	notifier := &stubNotifier{}

	dispatcher := workers.NotificationDispatcher{
		Sessions:      store,
		Notifier:      notifier,
		Clock:         stubClock{now: workerBase},
		BatchSize:     10,
		PublicBaseURL: "http://localhost:8080",
	}

	if err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("dispatch should succeed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one invite, got %d", len(notifier.sent))
	}
	invite := notifier.sent[0]
	if invite.contact != "jordan@example.com" {
		t.Fatalf("invite addresses the captured contact, got %q", invite.contact)
	}
	if !strings.Contains(invite.body, "http://localhost:8080/escrow/exchange/tok-1") {
		t.Fatalf("invite body should carry the share url, got %q", invite.body)
	}

	session, err := store.GetSession(context.Background(), "esc-1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if !session.RecipientNotified {
		t.Fatalf("delivery acknowledgment should flip the recipient flag")
	}

	if err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("repeat dispatch should succeed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("invite must send at most once, got %d", len(notifier.sent))
	}
}

func TestNotificationDispatcherCompletedNotifiesBothParties(t *testing.T) {
	completed := seedSession("esc-1", "tok-1", entities.SessionStatusCompleted, workerBase.Add(time.Hour))
	submittedAt := workerBase.Add(-30 * time.Minute)
	completed.RecipientLineup = entities.Lineup{"Q1"}
	completed.RecipientSubmittedAt = &submittedAt

	store := memory.NewStore([]entities.EscrowSession{completed}, nil)
	notifier := &stubNotifier{}

	dispatcher := workers.NotificationDispatcher{
		Sessions:      store,
		Notifier:      notifier,
		Clock:         stubClock{now: workerBase},
		BatchSize:     10,
		PublicBaseURL: "http://localhost:8080",
	}

	if err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("dispatch should succeed: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("completed session notifies both parties, got %d", len(notifier.sent))
	}
	if notifier.sent[0].userID != "user-init" {
		t.Fatalf("initiator addressed by user id, got %+v", notifier.sent[0])
	}
	if notifier.sent[1].contact != "jordan@example.com" {
		t.Fatalf("recipient addressed by contact, got %+v", notifier.sent[1])
	}

	session, err := store.GetSession(context.Background(), "esc-1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if !session.InitiatorNotified || !session.RecipientNotified {
		t.Fatalf("both party flags should flip after delivery")
	}
}

func TestNotificationDispatcherRetriesAfterFailure(t *testing.T) {
	store := memory.NewStore([]entities.EscrowSession{
		seedSession("esc-1", "tok-1", entities.SessionStatusPending, workerBase.Add(time.Hour)),
	}, nil)
	notifier := &stubNotifier{fail: true}

	dispatcher := workers.NotificationDispatcher{
		Sessions:      store,
		Notifier:      notifier,
		Clock:         stubClock{now: workerBase},
		BatchSize:     10,
		PublicBaseURL: "http://localhost:8080",
	}

	if err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("delivery failure is soft, got %v", err)
	}
	session, err := store.GetSession(context.Background(), "esc-1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if session.RecipientNotified {
		t.Fatalf("failed delivery must leave the flag untouched")
	}

	notifier.fail = false
	if err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("retry dispatch should succeed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected the retried invite, got %d", len(notifier.sent))
	}
	session, err = store.GetSession(context.Background(), "esc-1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if !session.RecipientNotified {
		t.Fatalf("retry should flip the flag after acknowledgment")
	}
}

func TestNotificationDispatcherExpiredNotifiesInitiatorOnly(t *testing.T) {
	store := memory.NewStore([]entities.EscrowSession{
		seedSession("esc-1", "tok-1", entities.SessionStatusExpired, workerBase.Add(-time.Hour)),
	}, nil)
	notifier := &stubNotifier{}

	dispatcher := workers.NotificationDispatcher{
		Sessions:      store,
		Notifier:      notifier,
		Clock:         stubClock{now: workerBase},
		BatchSize:     10,
		PublicBaseURL: "http://localhost:8080",
	}

	if err := dispatcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("dispatch should succeed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expired session notifies the initiator only, got %d", len(notifier.sent))
	}
	if notifier.sent[0].userID != "user-init" {
		t.Fatalf("expected initiator notice, got %+v", notifier.sent[0])
	}
	if !strings.Contains(notifier.sent[0].body, "expired without a response") {
		t.Fatalf("unexpected expiry notice body %q", notifier.sent[0].body)
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store := memory.NewStore(nil, nil)
	for _, id := range []string{"esc-1", "esc-2"} {
		session := seedSession(id, "tok-"+id, entities.SessionStatusPending, workerBase.Add(time.Hour))
		if err := store.CreateSessionWithOutbox(context.Background(), session, ports.EscrowEvent{
			EventID:      "evt-" + id,
			EventType:    "escrow.created",
			EscrowID:     id,
			PartitionKey: id,
			OccurredAt:   workerBase,
		}); err != nil {
			t.Fatalf("seed create failed: %v", err)
		}
	}
	publisher := &stubPublisher{}

	relay := workers.OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     stubClock{now: workerBase},
		BatchSize: 10,
	}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay should succeed: %v", err)
	}
	if len(publisher.envelopes) != 2 {
		t.Fatalf("expected two published envelopes, got %d", len(publisher.envelopes))
	}
	for _, topic := range publisher.topics {
		if topic != "match-operations.escrow" {
			t.Fatalf("unexpected topic %q", topic)
		}
	}
	if publisher.envelopes[0].EventID != "evt-esc-1" || publisher.envelopes[1].EventID != "evt-esc-2" {
		t.Fatalf("envelopes should relay in append order, got %s then %s",
			publisher.envelopes[0].EventID, publisher.envelopes[1].EventID)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("published rows should be marked sent, got %d pending", len(pending))
	}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("repeat relay should succeed: %v", err)
	}
	if len(publisher.envelopes) != 2 {
		t.Fatalf("repeat relay must not republish, got %d", len(publisher.envelopes))
	}
}

func TestOutboxRelayKeepsRowsOnPublishFailure(t *testing.T) {
	store := memory.NewStore(nil, nil)
	session := seedSession("esc-1", "tok-1", entities.SessionStatusPending, workerBase.Add(time.Hour))
	if err := store.CreateSessionWithOutbox(context.Background(), session, ports.EscrowEvent{
		EventID:      "evt-1",
		EventType:    "escrow.created",
		EscrowID:     "esc-1",
		PartitionKey: "esc-1",
		OccurredAt:   workerBase,
	}); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}
	publisher := &stubPublisher{fail: true}

	relay := workers.OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     stubClock{now: workerBase},
		BatchSize: 10,
	}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("publish failure should surface")
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("unpublished rows must stay pending, got %d", len(pending))
	}
}
