package domain

import "time"

// AttemptOutcome is the result of a single provider call.
type AttemptOutcome string

const (
	AttemptDelivered AttemptOutcome = "DELIVERED"
	AttemptFailed    AttemptOutcome = "FAILED"
)

func (o AttemptOutcome) String() string { return string(o) }

// DeliveryAttempt records a single provider call for a notification.
// Rows are append-only and never mutated after creation.
type DeliveryAttempt struct {
	ID             string
	NotificationID string
	ProviderID     string
	AttemptNumber  int
	Outcome        AttemptOutcome
	StatusCode     *int
	ResponseBody   *string
	Error          *string
	CreatedAt      time.Time
}
