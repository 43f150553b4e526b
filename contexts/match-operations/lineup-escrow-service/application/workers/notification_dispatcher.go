package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/services"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

// NotificationDispatcher delivers the messages a session still owes its
// parties and flips the per-party notified flag only after the collaborator
// acknowledged delivery. A failed dispatch leaves the flag untouched, so the
// next cycle retries; a flipped flag is never attempted again.
type NotificationDispatcher struct {
	Sessions      ports.SessionRepository
	Notifier      ports.NotificationService
	Clock         ports.Clock
	BatchSize     int
	PublicBaseURL string
	Logger        *slog.Logger
}

func (d NotificationDispatcher) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(d.Logger)
	now := time.Now().UTC()
	if d.Clock != nil {
		now = d.Clock.Now().UTC()
	}
	limit := d.BatchSize
	if limit <= 0 {
		limit = 100
	}

	due, err := d.Sessions.ListNotificationDue(ctx, now, limit)
	if err != nil {
		logger.Error("notification listing failed",
			"event", "lineup_escrow_notification_list_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	sent := 0
	for _, session := range due {
		shareURL := application.ShareURL(d.PublicBaseURL, session.Token)
		for _, notification := range services.PendingNotifications(session, now, shareURL) {
			if err := d.deliver(ctx, notification); err != nil {
				// Soft failure: the flag stays false and the next cycle retries.
				logger.Warn("notification delivery failed",
					"event", "lineup_escrow_notification_delivery_failed",
					"module", "match-operations/lineup-escrow-service",
					"layer", "worker",
					"session_id", session.EscrowID,
					"party", notification.Party,
					"kind", notification.Kind,
					"error", err.Error(),
				)
				continue
			}
			flipped, err := d.Sessions.MarkNotified(ctx, session.EscrowID, notification.Party, now)
			if err != nil {
				logger.Error("notification flag update failed",
					"event", "lineup_escrow_notification_mark_failed",
					"module", "match-operations/lineup-escrow-service",
					"layer", "worker",
					"session_id", session.EscrowID,
					"party", notification.Party,
					"error", err.Error(),
				)
				return err
			}
			if flipped {
				sent++
				logger.Info("notification delivered",
					"event", "lineup_escrow_notification_delivered",
					"module", "match-operations/lineup-escrow-service",
					"layer", "worker",
					"session_id", session.EscrowID,
					"party", notification.Party,
					"kind", notification.Kind,
				)
			}
		}
	}

	if sent > 0 {
		logger.Info("notification cycle completed",
			"event", "lineup_escrow_notification_cycle_completed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "worker",
			"sent_count", sent,
		)
	}
	return nil
}

func (d NotificationDispatcher) deliver(ctx context.Context, notification services.Notification) error {
	var err error
	if notification.UserID != "" {
		err = d.Notifier.SendToUser(ctx, notification.UserID, notification.Subject, notification.Body)
	} else {
		err = d.Notifier.Send(ctx, notification.Contact, notification.Channel, notification.Subject, notification.Body)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrNotificationFailure, err)
	}
	return nil
}
