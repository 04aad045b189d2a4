package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Webhook posts events as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, logger zerolog.Logger) *Webhook {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Notify posts the event. Failures are logged only.
func (w *Webhook) Notify(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to encode notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn().Err(err).Str("team", ev.Team).Str("action", ev.Action).
			Msg("notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn().Int("status", resp.StatusCode).Str("team", ev.Team).
			Str("action", ev.Action).Msg("notification rejected")
	}
}
