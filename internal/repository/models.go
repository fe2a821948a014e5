package repository

import (
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID               string          `gorm:"type:uuid;primaryKey"`
	TenantID         string          `gorm:"type:uuid;not null;index"`
	Channel          domain.Channel  `gorm:"type:varchar(10);not null"`
	Priority         domain.Priority `gorm:"type:varchar(10);not null"`
	Recipient        string          `gorm:"type:varchar(255);not null"`
	Content          string          `gorm:"type:text;not null"`
	Status           domain.Status   `gorm:"type:varchar(20);not null"`
	Fingerprint      *string         `gorm:"type:varchar(64)"`
	ExplicitProvider *string         `gorm:"type:varchar(64)"`
	ExternalID       *string         `gorm:"type:varchar(255)"`
	RetryCount       int             `gorm:"not null;default:0"`
	MaxRetries       int             `gorm:"not null;default:3"`
	RetryTaskID      *string         `gorm:"type:uuid"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeliveredAt      *time.Time
	FailedAt         *time.Time
	CancelledAt      *time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
// Append-only; rows are never updated.
type DeliveryAttemptModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	NotificationID string                `gorm:"type:uuid;not null"`
	ProviderID     string                `gorm:"type:varchar(64);not null"`
	AttemptNumber  int                   `gorm:"not null"`
	Outcome        domain.AttemptOutcome `gorm:"type:varchar(20);not null"`
	StatusCode     *int                  `gorm:"type:int"`
	ResponseBody   *string               `gorm:"type:text"`
	Error          *string               `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// WebhookModel is the persistence model for webhooks.
type WebhookModel struct {
	ID         string             `gorm:"type:uuid;primaryKey"`
	TenantID   string             `gorm:"type:uuid;not null;index"`
	URL        string             `gorm:"type:varchar(500);not null"`
	Active     bool               `gorm:"not null;default:true"`
	Headers    []domain.Header    `gorm:"serializer:json"`
	Events     []domain.EventType `gorm:"serializer:json"`
	MaxRetries int                `gorm:"not null;default:3"`
	TimeoutSec int                `gorm:"not null;default:30"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (WebhookModel) TableName() string {
	return "webhooks"
}

// WebhookDeliveryModel is the persistence model for webhook_deliveries.
type WebhookDeliveryModel struct {
	ID                 string                       `gorm:"type:uuid;primaryKey"`
	WebhookID          string                       `gorm:"type:uuid;not null"`
	NotificationID     string                       `gorm:"type:uuid;not null;index"`
	Event              domain.EventType             `gorm:"type:varchar(20);not null"`
	Status             domain.WebhookDeliveryStatus `gorm:"type:varchar(20);not null"`
	AttemptCount       int                          `gorm:"not null;default:0"`
	Payload            []byte                       `gorm:"type:jsonb"`
	LastAttemptAt      *time.Time
	AcknowledgedAt     *time.Time
	ResponseStatusCode *int    `gorm:"type:int"`
	ResponseBody       *string `gorm:"type:text"`
	Error              *string `gorm:"type:text"`
	RetryTaskID        *string `gorm:"type:uuid"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

// ScheduledTaskModel is the persistence model for scheduled_tasks, the
// durable backing of the retry scheduler.
type ScheduledTaskModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Kind      string `gorm:"type:varchar(40);not null"`
	Payload   []byte `gorm:"type:jsonb"`
	RunAt     time.Time
	Status    string `gorm:"type:varchar(20);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ScheduledTaskModel) TableName() string {
	return "scheduled_tasks"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:               n.ID,
		TenantID:         n.TenantID,
		Channel:          n.Channel,
		Priority:         n.Priority,
		Recipient:        n.Recipient,
		Content:          n.Content,
		Status:           n.Status,
		Fingerprint:      n.Fingerprint,
		ExplicitProvider: n.ExplicitProvider,
		ExternalID:       n.ExternalID,
		RetryCount:       n.RetryCount,
		MaxRetries:       n.MaxRetries,
		RetryTaskID:      n.RetryTaskID,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		DeliveredAt:      n.DeliveredAt,
		FailedAt:         n.FailedAt,
		CancelledAt:      n.CancelledAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:               m.ID,
		TenantID:         m.TenantID,
		Channel:          m.Channel,
		Priority:         m.Priority,
		Recipient:        m.Recipient,
		Content:          m.Content,
		Status:           m.Status,
		Fingerprint:      m.Fingerprint,
		ExplicitProvider: m.ExplicitProvider,
		ExternalID:       m.ExternalID,
		RetryCount:       m.RetryCount,
		MaxRetries:       m.MaxRetries,
		RetryTaskID:      m.RetryTaskID,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		DeliveredAt:      m.DeliveredAt,
		FailedAt:         m.FailedAt,
		CancelledAt:      m.CancelledAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		ProviderID:     a.ProviderID,
		AttemptNumber:  a.AttemptNumber,
		Outcome:        a.Outcome,
		StatusCode:     a.StatusCode,
		ResponseBody:   a.ResponseBody,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		ProviderID:     m.ProviderID,
		AttemptNumber:  m.AttemptNumber,
		Outcome:        m.Outcome,
		StatusCode:     m.StatusCode,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}

func webhookModelFromDomain(w *domain.Webhook) *WebhookModel {
	if w == nil {
		return nil
	}

	return &WebhookModel{
		ID:         w.ID,
		TenantID:   w.TenantID,
		URL:        w.URL,
		Active:     w.Active,
		Headers:    w.Headers,
		Events:     w.Events,
		MaxRetries: w.MaxRetries,
		TimeoutSec: int(w.Timeout / time.Second),
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

func webhookModelToDomain(m *WebhookModel) *domain.Webhook {
	if m == nil {
		return nil
	}

	return &domain.Webhook{
		ID:         m.ID,
		TenantID:   m.TenantID,
		URL:        m.URL,
		Active:     m.Active,
		Headers:    m.Headers,
		Events:     m.Events,
		MaxRetries: m.MaxRetries,
		Timeout:    time.Duration(m.TimeoutSec) * time.Second,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func webhookDeliveryModelFromDomain(d *domain.WebhookDelivery) *WebhookDeliveryModel {
	if d == nil {
		return nil
	}

	return &WebhookDeliveryModel{
		ID:                 d.ID,
		WebhookID:          d.WebhookID,
		NotificationID:     d.NotificationID,
		Event:              d.Event,
		Status:             d.Status,
		AttemptCount:       d.AttemptCount,
		Payload:            d.Payload,
		LastAttemptAt:      d.LastAttemptAt,
		AcknowledgedAt:     d.AcknowledgedAt,
		ResponseStatusCode: d.ResponseStatusCode,
		ResponseBody:       d.ResponseBody,
		Error:              d.Error,
		RetryTaskID:        d.RetryTaskID,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func webhookDeliveryModelToDomain(m *WebhookDeliveryModel) *domain.WebhookDelivery {
	if m == nil {
		return nil
	}

	return &domain.WebhookDelivery{
		ID:                 m.ID,
		WebhookID:          m.WebhookID,
		NotificationID:     m.NotificationID,
		Event:              m.Event,
		Status:             m.Status,
		AttemptCount:       m.AttemptCount,
		Payload:            m.Payload,
		LastAttemptAt:      m.LastAttemptAt,
		AcknowledgedAt:     m.AcknowledgedAt,
		ResponseStatusCode: m.ResponseStatusCode,
		ResponseBody:       m.ResponseBody,
		Error:              m.Error,
		RetryTaskID:        m.RetryTaskID,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
