package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketbrief/internal/resilience/retry"
)

// HTTPAPIConfig configures the HTTP email API transport.
type HTTPAPIConfig struct {
	// Endpoint is the provider's send URL.
	Endpoint string

	// APIKey is sent as a bearer token.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration
}

// HTTPAPIMailer posts the message as JSON to an email API endpoint.
type HTTPAPIMailer struct {
	cfg  HTTPAPIConfig
	http *http.Client
}

// NewHTTPAPIMailer creates the HTTP transport.
func NewHTTPAPIMailer(cfg HTTPAPIConfig) *HTTPAPIMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPAPIMailer{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Mailer.
func (m *HTTPAPIMailer) Name() string { return "http-api" }

// sendPayload is the provider-facing request body.
type sendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// Send implements Mailer.
func (m *HTTPAPIMailer) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(sendPayload{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
	return &retry.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("email api: %s", string(body)),
	}
}
