package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"parley/internal/coord"
)

const defaultTimeout = 5 * time.Second

// WebhookNotifier forwards notifications for offline users to an external
// push gateway as a JSON POST. Delivery is best-effort; the coordinator
// treats notifier failures as non-fatal.
type WebhookNotifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

func NewWebhookNotifier(endpoint, apiKey string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger,
	}
}

type webhookPayload struct {
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Kind   string            `json:"kind"`
	Data   map[string]string `json:"data,omitempty"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, userID string, notification coord.Notification) error {
	body, err := json.Marshal(webhookPayload{
		UserID: userID,
		Title:  notification.Title,
		Body:   notification.Body,
		Kind:   notification.Kind,
		Data:   notification.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}

	n.logger.Debug("push notification forwarded",
		zap.String("user_id", userID),
		zap.String("kind", notification.Kind),
	)
	return nil
}

// LogNotifier is the fallback when no gateway is configured: it records the
// notification and drops it. Useful for development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, userID string, notification coord.Notification) error {
	n.logger.Info("push notification (no gateway configured)",
		zap.String("user_id", userID),
		zap.String("kind", notification.Kind),
		zap.String("title", notification.Title),
	)
	return nil
}
