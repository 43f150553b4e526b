package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

const subscriberBuffer = 128

// Kafka carries escrow envelopes between the outbox relay and topic
// consumers. Delivery is process-local fan-out: each subscription gets a
// buffered channel and a full buffer drops the envelope for that subscriber
// only. The configured broker list is kept so runtime config is already in
// place when the shared league broker is provisioned.
type Kafka struct {
	mu      sync.RWMutex
	brokers []string
	subs    map[string][]*subscription
	logger  *slog.Logger
}

type subscription struct {
	group string
	ch    chan ports.EventEnvelope
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	bus := &Kafka{
		brokers: append([]string(nil), brokers...),
		subs:    make(map[string][]*subscription),
		logger:  logger,
	}
	if logger != nil {
		logger.Info("event bus ready",
			"event", "messaging_bus_ready",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"broker_count", len(bus.brokers),
		)
	}
	return bus, nil
}

// Publish never blocks the caller; the outbox relay retries rows that
// failed, so an error here must mean the envelope was not handed off at all.
func (k *Kafka) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.RLock()
	targets := append([]*subscription(nil), k.subs[topic]...)
	k.mu.RUnlock()

	delivered := 0
	for _, target := range targets {
		select {
		case target.ch <- event:
			delivered++
		default:
			if k.logger != nil {
				k.logger.Warn("subscriber buffer full, envelope dropped",
					"event", "messaging_subscriber_lagging",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", target.group,
					"event_id", event.EventID,
					"event_type", event.EventType,
				)
			}
		}
	}

	if k.logger != nil {
		k.logger.Info("envelope published",
			"event", "messaging_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"event_type", event.EventType,
			"partition_key", event.PartitionKey,
			"delivered_count", delivered,
		)
	}
	return nil
}

// Subscribe runs handler on each envelope published to topic until ctx is
// cancelled. Handler errors are logged and the subscription keeps consuming.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	sub := &subscription{
		group: consumerGroup,
		ch:    make(chan ports.EventEnvelope, subscriberBuffer),
	}

	k.mu.Lock()
	k.subs[topic] = append(k.subs[topic], sub)
	k.mu.Unlock()

	go k.consume(ctx, topic, sub, handler)
	return nil
}

func (k *Kafka) consume(
	ctx context.Context,
	topic string,
	sub *subscription,
	handler func(context.Context, ports.EventEnvelope) error,
) {
	defer k.unsubscribe(topic, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.ch:
			if err := handler(ctx, event); err != nil && k.logger != nil {
				k.logger.Error("envelope handler failed",
					"event", "messaging_handler_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", sub.group,
					"event_id", event.EventID,
					"event_type", event.EventType,
					"error", err.Error(),
				)
			}
		}
	}
}

func (k *Kafka) unsubscribe(topic string, target *subscription) {
	k.mu.Lock()
	defer k.mu.Unlock()

	remaining := k.subs[topic][:0]
	for _, sub := range k.subs[topic] {
		if sub != target {
			remaining = append(remaining, sub)
		}
	}
	k.subs[topic] = remaining
}
