package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultWebhookMaxRetries is the retry budget beyond the initial
// synchronous attempt, so four total attempts by default.
const DefaultWebhookMaxRetries = 3

// DefaultWebhookTimeout bounds a single webhook HTTP call.
const DefaultWebhookTimeout = 30 * time.Second

// Header is a single custom header applied to webhook requests.
// Order is preserved as configured by the tenant.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Webhook is a per-tenant callback endpoint configuration. Created and
// updated by tenant management; read-only to the delivery engine.
type Webhook struct {
	ID         string
	TenantID   string
	URL        string
	Active     bool
	Headers    []Header
	Events     []EventType
	MaxRetries int
	Timeout    time.Duration
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (w *Webhook) Validate() error {
	if strings.TrimSpace(w.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(w.URL)); err != nil {
		return fmt.Errorf("%w: invalid webhook url: %v", ErrValidation, err)
	}
	for _, event := range w.Events {
		if event != EventAll && !event.IsValid() {
			return fmt.Errorf("%w: invalid event %q", ErrValidation, event)
		}
	}
	if w.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrValidation)
	}
	return nil
}

// SubscribesTo reports whether the webhook wants the given lifecycle event.
// An empty event set and the "all" marker both subscribe to everything.
func (w *Webhook) SubscribesTo(event EventType) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == EventAll || e == event {
			return true
		}
	}
	return false
}

// RetryBudget returns the configured retry ceiling with the default applied.
func (w *Webhook) RetryBudget() int {
	if w.MaxRetries <= 0 {
		return DefaultWebhookMaxRetries
	}
	return w.MaxRetries
}

// CallTimeout returns the configured per-call timeout with the default applied.
func (w *Webhook) CallTimeout() time.Duration {
	if w.Timeout <= 0 {
		return DefaultWebhookTimeout
	}
	return w.Timeout
}

// WebhookDeliveryStatus is the state of one tracked delivery sequence.
type WebhookDeliveryStatus string

const (
	WebhookDeliveryPending      WebhookDeliveryStatus = "PENDING"
	WebhookDeliveryAcknowledged WebhookDeliveryStatus = "ACKNOWLEDGED"
	WebhookDeliveryRetrying     WebhookDeliveryStatus = "RETRYING"
	WebhookDeliveryFailed       WebhookDeliveryStatus = "FAILED"
)

func (s WebhookDeliveryStatus) String() string { return string(s) }

// IsTerminal reports whether the delivery sequence is finished.
func (s WebhookDeliveryStatus) IsTerminal() bool {
	return s == WebhookDeliveryAcknowledged || s == WebhookDeliveryFailed
}

// WebhookDelivery tracks the attempt sequence of a single lifecycle event to
// a single webhook endpoint. Once acknowledged or failed the record is
// immutable.
type WebhookDelivery struct {
	ID                 string
	WebhookID          string
	NotificationID     string
	Event              EventType
	Status             WebhookDeliveryStatus
	AttemptCount       int
	Payload            []byte
	LastAttemptAt      *time.Time
	AcknowledgedAt     *time.Time
	ResponseStatusCode *int
	ResponseBody       *string
	Error              *string
	RetryTaskID        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
