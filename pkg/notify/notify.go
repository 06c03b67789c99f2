// Package notify delivers operator notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

// Notifier sends one message to the operator.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Error is a rejected delivery. StatusCode is 0 for transport failures.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("notification failed: %s", e.Body)
	}
	return fmt.Sprintf("notification rejected with status %d: %s", e.StatusCode, e.Body)
}

// Nop discards every message.
type Nop struct{}

// Send does nothing.
func (Nop) Send(ctx context.Context, message string) error {
	return nil
}

// HTTPConfig configures an HTTPNotifier.
type HTTPConfig struct {
	URL string
	// Token, when set, is sent as a bearer token.
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// HTTPNotifier posts messages as JSON to a webhook URL.
type HTTPNotifier struct {
	url    string
	token  string
	client *http.Client
	logger zerolog.Logger
}

type httpPayload struct {
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHTTPNotifier validates cfg and returns a notifier.
func NewHTTPNotifier(cfg HTTPConfig) (*HTTPNotifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("notify url is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPNotifier{
		url:    cfg.URL,
		token:  cfg.Token,
		client: client,
		logger: cfg.Logger.With().Str("component", "notify").Logger(),
	}, nil
}

// Send posts the message. Non-2xx responses return *Error with the body.
func (n *HTTPNotifier) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(httpPayload{
		Message:   message,
		Source:    "tradebrain",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return &Error{Body: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	n.logger.Debug().Int("status", resp.StatusCode).Msg("Notification delivered")
	return nil
}
