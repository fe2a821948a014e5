package provider

import (
	"context"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// Provider is the outbound notification delivery port.
type Provider interface {
	Send(ctx context.Context, notification domain.Notification) (*SendResult, error)
}

// SendResult stores provider call metadata for audit and persistence.
type SendResult struct {
	StatusCode int
	Body       string
	ExternalID string
}
