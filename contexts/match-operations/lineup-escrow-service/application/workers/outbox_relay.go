package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

const defaultEscrowTopic = "match-operations.escrow"

// OutboxRelay drains the escrow outbox into the event bus in creation
// order. A row is marked sent only after the publisher accepted its
// envelope; any failure ends the cycle with the row still pending, so the
// next tick retries it.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)

	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("outbox list pending failed",
			"event", "lineup_escrow_outbox_list_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	topic := r.Topic
	if topic == "" {
		topic = defaultEscrowTopic
	}
	sentAt := time.Now().UTC()
	if r.Clock != nil {
		sentAt = r.Clock.Now().UTC()
	}

	for _, row := range rows {
		if err := r.relayRow(ctx, logger, topic, row, sentAt); err != nil {
			return err
		}
	}

	logger.Info("outbox relay cycle completed",
		"event", "lineup_escrow_outbox_relay_completed",
		"module", "match-operations/lineup-escrow-service",
		"layer", "worker",
		"sent_count", len(rows),
	)
	return nil
}

func (r OutboxRelay) relayRow(
	ctx context.Context,
	logger *slog.Logger,
	topic string,
	row ports.OutboxMessage,
	sentAt time.Time,
) error {
	var envelope ports.EventEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		logger.Error("outbox row is not a valid envelope",
			"event", "lineup_escrow_outbox_decode_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"outbox_id", row.OutboxID,
			"error", err.Error(),
		)
		return fmt.Errorf("decode outbox row %s: %w", row.OutboxID, err)
	}

	if err := r.Publisher.Publish(ctx, topic, envelope); err != nil {
		logger.Error("envelope publish failed",
			"event", "lineup_escrow_outbox_publish_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"outbox_id", row.OutboxID,
			"event_id", envelope.EventID,
			"event_type", envelope.EventType,
			"error", err.Error(),
		)
		return fmt.Errorf("publish outbox row %s: %w", row.OutboxID, err)
	}

	if err := r.Outbox.MarkOutboxSent(ctx, row.OutboxID, sentAt); err != nil {
		logger.Error("outbox mark sent failed",
			"event", "lineup_escrow_outbox_mark_sent_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"outbox_id", row.OutboxID,
			"error", err.Error(),
		)
		return fmt.Errorf("mark outbox row %s sent: %w", row.OutboxID, err)
	}
	return nil
}
