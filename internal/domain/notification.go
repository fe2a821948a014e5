package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusQueued    Status = "QUEUED"
	StatusSending   Status = "SENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSending, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// CanTransition reports whether moving from one status to another is allowed.
// Terminal states accept no outgoing transitions. PENDING is re-enterable
// from SENDING because a scheduled retry parks the notification back in
// PENDING until the retry timer fires.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusQueued || to == StatusCancelled
	case StatusQueued:
		return to == StatusSending || to == StatusCancelled
	case StatusSending:
		return to == StatusPending || to == StatusDelivered || to == StatusFailed || to == StatusCancelled
	}
	return false
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Priority represents the message priority level.
type Priority string

const (
	PriorityInstant Priority = "INSTANT"
	PriorityHigh    Priority = "HIGH"
	PriorityNormal  Priority = "NORMAL"
	PriorityLow     Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityInstant, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Content limits per channel (in characters).
const (
	MaxSMSContent      = 160
	MaxWhatsAppContent = 4096
	MaxEmailContent    = 10000
)

// DefaultMaxRetries is the provider retry budget per notification.
const DefaultMaxRetries = 3

// Notification is the core domain entity representing a message to be delivered.
type Notification struct {
	ID               string
	TenantID         string
	Channel          Channel
	Priority         Priority
	Recipient        string
	Content          string
	Status           Status
	Fingerprint      *string
	ExplicitProvider *string
	ExternalID       *string
	RetryCount       int
	MaxRetries       int
	RetryTaskID      *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeliveredAt      *time.Time
	FailedAt         *time.Time
	CancelledAt      *time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if n.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if n.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if n.RetryCount < 0 || (n.MaxRetries > 0 && n.RetryCount > n.MaxRetries) {
		return fmt.Errorf("%w: retry count %d out of range", ErrValidation, n.RetryCount)
	}

	contentLen := len([]rune(n.Content))
	switch n.Channel {
	case ChannelSMS:
		if contentLen > MaxSMSContent {
			return fmt.Errorf("%w: SMS content exceeds %d characters (got %d)", ErrValidation, MaxSMSContent, contentLen)
		}
	case ChannelWhatsApp:
		if contentLen > MaxWhatsAppContent {
			return fmt.Errorf("%w: whatsapp content exceeds %d characters (got %d)", ErrValidation, MaxWhatsAppContent, contentLen)
		}
	case ChannelEmail:
		if contentLen > MaxEmailContent {
			return fmt.Errorf("%w: email content exceeds %d characters (got %d)", ErrValidation, MaxEmailContent, contentLen)
		}
	}

	return nil
}

// RetriesExhausted reports whether the provider retry budget is spent.
func (n *Notification) RetriesExhausted() bool {
	maxRetries := n.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return n.RetryCount >= maxRetries
}
