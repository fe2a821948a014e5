package webhook

import (
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// EventPayload is the JSON body posted to tenant webhook endpoints. Field
// names are part of the wire contract and must not change.
type EventPayload struct {
	Event          string     `json:"event"`
	NotificationID string     `json:"notification_id"`
	ServiceID      string     `json:"service_id"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Recipient      string     `json:"recipient"`
	Content        string     `json:"content"`
	Priority       string     `json:"priority"`
	CreatedAt      time.Time  `json:"created_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	AttemptNumber  int        `json:"attempt_number"`
	TotalAttempts  int        `json:"total_attempts"`
	WebhookAttempt int        `json:"webhook_attempt"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// BuildPayload constructs the event payload from a notification snapshot.
// WebhookAttempt is stamped per attempt by the sender, not here.
func BuildPayload(n domain.Notification, event domain.EventType, errorMessage string) EventPayload {
	maxRetries := n.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	p := EventPayload{
		Event:          event.String(),
		NotificationID: n.ID,
		ServiceID:      n.TenantID,
		Type:           strings.ToLower(n.Channel.String()),
		Status:         strings.ToLower(n.Status.String()),
		Recipient:      n.Recipient,
		Content:        n.Content,
		Priority:       strings.ToLower(n.Priority.String()),
		CreatedAt:      n.CreatedAt,
		AttemptNumber:  n.RetryCount + 1,
		TotalAttempts:  maxRetries + 1,
	}

	switch event {
	case domain.EventDelivered:
		p.DeliveredAt = n.DeliveredAt
	case domain.EventFailed:
		p.FailedAt = n.FailedAt
		p.ErrorMessage = errorMessage
	case domain.EventCancelled:
		p.CancelledAt = n.CancelledAt
	}

	return p
}
