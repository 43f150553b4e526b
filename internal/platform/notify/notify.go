package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
)

const defaultTimeout = 10 * time.Second

// Client posts notification requests to the league messaging gateway.
// When no endpoint is configured it acknowledges deliveries locally, which
// keeps single-process development environments working without a gateway.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(endpoint string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   logger,
	}
}

type messageRequest struct {
	Contact string `json:"contact,omitempty"`
	Channel string `json:"channel,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *Client) Send(ctx context.Context, contact string, channel entities.ContactType, subject, body string) error {
	return c.post(ctx, messageRequest{
		Contact: contact,
		Channel: string(channel),
		Subject: subject,
		Body:    body,
	})
}

func (c *Client) SendToUser(ctx context.Context, userID, subject, body string) error {
	return c.post(ctx, messageRequest{
		UserID:  userID,
		Subject: subject,
		Body:    body,
	})
}

func (c *Client) post(ctx context.Context, message messageRequest) error {
	if c.endpoint == "" {
		if c.logger != nil {
			c.logger.Info("notification acknowledged locally",
				"event", "notify_local_ack",
				"module", "internal/platform/notify",
				"layer", "platform",
				"subject", message.Subject,
			)
		}
		return nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}
	return nil
}
