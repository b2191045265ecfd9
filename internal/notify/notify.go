// Package notify delivers payment lifecycle events to external services.
//
// Marketplace backends register webhook URLs to receive notifications about:
// - Payments entering and leaving escrow
// - Disputes being opened and resolved
// - Funds being released to technicians
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/odaglas/tecwork/internal/security"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventPaymentCreated  EventType = "payment.created"
	EventPaymentRetained EventType = "payment.retained"
	EventPaymentReleased EventType = "payment.released"
	EventDisputeOpened   EventType = "dispute.opened"
	EventDisputeReviewed EventType = "dispute.under_review"
	EventDisputeResolved EventType = "dispute.resolved"
)

// Event represents a webhook event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription represents a webhook subscription
type Subscription struct {
	ID                  string      `json:"id"`
	URL                 string      `json:"url"`
	Secret              string      `json:"-"` // Used for HMAC signing
	Events              []EventType `json:"events"`
	Active              bool        `json:"active"`
	CreatedAt           time.Time   `json:"createdAt"`
	LastSuccess         *time.Time  `json:"lastSuccess,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	ConsecutiveFailures int         `json:"-"`
}

// Store persists webhook subscriptions
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// RetryConfig controls delivery retries and automatic deactivation.
type RetryConfig struct {
	MaxAttempts int           // delivery attempts per event
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on exponential backoff
	MaxFailures int           // consecutive failures before deactivation
}

// DefaultRetryConfig retries twice with short backoff and deactivates a
// subscription after ten consecutive failed events.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		MaxFailures: 10,
	}
}

// Dispatcher sends webhook events
type Dispatcher struct {
	store        Store
	client       *http.Client
	retry        RetryConfig
	urlValidator func(string) error
}

// NewDispatcher creates a webhook dispatcher with default retry behavior
func NewDispatcher(store Store) *Dispatcher {
	return NewDispatcherWithRetry(store, DefaultRetryConfig())
}

// NewDispatcherWithRetry creates a dispatcher with explicit retry behavior
func NewDispatcherWithRetry(store Store, retry RetryConfig) *Dispatcher {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:        retry,
		urlValidator: security.ValidateEndpointURL,
	}
}

// Dispatch sends an event to all active subscribers of its type
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	subs, err := d.store.GetByEvent(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to get subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Send async to avoid blocking
		go d.send(ctx, sub, event)
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if err := d.urlValidator(sub.URL); err != nil {
		d.updateError(ctx, sub, fmt.Sprintf("blocked URL: %v", err))
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	delay := d.retry.BaseDelay
	var lastErr string
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				d.updateError(ctx, sub, "delivery canceled")
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > d.retry.MaxDelay {
				delay = d.retry.MaxDelay
			}
		}

		if lastErr = d.attempt(ctx, sub, event, payload); lastErr == "" {
			d.updateSuccess(ctx, sub)
			return
		}
	}

	d.updateError(ctx, sub, lastErr)
}

// attempt performs one delivery and returns an empty string on success.
func (d *Dispatcher) attempt(ctx context.Context, sub *Subscription, event *Event, payload []byte) string {
	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		return "failed to create request"
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tecwork-Event", string(event.Type))
	req.Header.Set("X-Tecwork-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))

	// Sign the payload if secret is set
	if sub.Secret != "" {
		req.Header.Set("X-Tecwork-Signature", Sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ""
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

// Sign computes the hex HMAC-SHA256 of payload with the subscription secret.
// Receivers verify deliveries with the same computation.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	sub.ConsecutiveFailures = 0
	d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	sub.ConsecutiveFailures++
	if d.retry.MaxFailures > 0 && sub.ConsecutiveFailures >= d.retry.MaxFailures {
		sub.Active = false
	}
	d.store.Update(ctx, sub)
}
