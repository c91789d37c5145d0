package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chatwarden/warden/engine"
	"github.com/chatwarden/warden/util"
)

// Webhook delivers each event's action batch as one JSON POST, for ticket
// systems and workflow automation. Events that produced no actions are
// skipped. Delivery rides the shared retrying HTTP client; an event that
// still fails afterwards is returned as an error for the caller to
// surface.
type Webhook struct {
	logger     *slog.Logger
	webhookURL string
	authToken  string
	httpClient *http.Client
}

func NewWebhook(webhookURL, authToken string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		logger:     logger.With("component", "webhook"),
		webhookURL: webhookURL,
		authToken:  authToken,
		httpClient: util.RobustHTTPClient(),
	}
}

var _ engine.Dispatcher = (*Webhook)(nil)

func (w *Webhook) Dispatch(ctx context.Context, evt *engine.DispatchEvent) error {
	if len(evt.Actions) == 0 {
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.authToken)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	w.logger.Debug("webhook delivered", "type", evt.Type, "community", evt.CommunityID, "actions", len(evt.Actions))
	return nil
}
