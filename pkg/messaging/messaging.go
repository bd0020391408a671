// Package messaging delivers outbound messages to leads through an external
// provider gateway (WhatsApp, SMS). Delivery is at-least-once: the engine may
// retry a send whose outcome it never observed, so every request carries an
// idempotency key the provider can deduplicate on.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

var ErrEmptyRecipient = errors.New("outbound message has no recipient phone")

// OutboundMessage is one send request against the provider.
type OutboundMessage struct {
	Channel        string `json:"channel"`
	Phone          string `json:"phone"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Result is the provider's answer to a send.
type Result struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, message OutboundMessage) (*Result, error)
}

// HTTPSender posts messages to a provider gateway endpoint.
type HTTPSender struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPSender(logger *slog.Logger, url string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "messaging"),
	}
}

func (s *HTTPSender) Send(ctx context.Context, message OutboundMessage) (*Result, error) {
	if message.Phone == "" {
		return nil, ErrEmptyRecipient
	}

	body, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", message.IdempotencyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn("failed to close provider response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	return &result, nil
}
