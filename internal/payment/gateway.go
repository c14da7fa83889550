// Package payment talks to the payment-intent relay in front of the processor.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const StatusSucceeded = "succeeded"

var (
	// ErrTimeout means no answer arrived within the configured timeout.
	ErrTimeout = errors.New("payment gateway timeout")
	// ErrUnavailable covers transport failures other than a timeout.
	ErrUnavailable = errors.New("payment gateway unavailable")
)

type IntentRequest struct {
	Amount        int64  `json:"amount"` // minor units
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

// Intent is the gateway's answer. Raw is the untouched response body.
type Intent struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

func (i Intent) Succeeded() bool { return i.Status == StatusSucceeded }

// RejectedError is a non-2xx answer from the gateway.
type RejectedError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payment gateway rejected request: http %d", e.StatusCode)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{}, Timeout: timeout}
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	var in Intent
	raw, err := c.post(ctx, "/create-payment-intent", req)
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("decode payment intent: %w", err)
	}
	in.Raw = raw
	return in, nil
}

// Refund reverses a succeeded intent.
func (c *Client) Refund(ctx context.Context, intentID string) error {
	_, err := c.post(ctx, "/refunds", map[string]string{"payment_intent": intentID})
	return err
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", path, ErrTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fmt.Errorf("%s: %w: %v", path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", path, ErrTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fmt.Errorf("%s: %w: %v", path, ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: asJSON(raw)}
	}
	return raw, nil
}

// asJSON keeps valid JSON as-is and wraps anything else in a JSON string.
func asJSON(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}
	b, _ := json.Marshal(string(raw))
	return b
}
