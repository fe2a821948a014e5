package service

import (
	"context"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// EventEmitter forwards notification lifecycle events to the webhook
// dispatcher. Emission failures never affect the notification's own state.
type EventEmitter interface {
	Emit(ctx context.Context, n domain.Notification, event domain.EventType, errorMessage string) error
}
