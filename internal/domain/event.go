package domain

import "strings"

// EventType is a notification lifecycle event forwarded to tenant webhooks.
type EventType string

const (
	EventCreated        EventType = "created"
	EventRetryScheduled EventType = "retry_scheduled"
	EventRetryAttempted EventType = "retry_attempted"
	EventDelivered      EventType = "delivered"
	EventFailed         EventType = "failed"
	EventCancelled      EventType = "cancelled"

	// EventAll subscribes a webhook to every lifecycle event.
	EventAll EventType = "all"
)

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	switch e {
	case EventCreated, EventRetryScheduled, EventRetryAttempted, EventDelivered, EventFailed, EventCancelled:
		return true
	}
	return false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	e := EventType(strings.ToLower(strings.TrimSpace(s)))
	if e == EventAll {
		return EventAll, nil
	}
	if !e.IsValid() {
		return "", ErrValidation
	}
	return e, nil
}
