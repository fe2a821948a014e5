package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// NotificationMessage is the broker payload for notification processing.
type NotificationMessage struct {
	NotificationID string          `json:"notificationId"`
	TenantID       string          `json:"tenantId"`
	Channel        domain.Channel  `json:"channel"`
	Priority       domain.Priority `json:"priority"`
	Retry          bool            `json:"retry,omitempty"`
}

func (m NotificationMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("tenantId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}
