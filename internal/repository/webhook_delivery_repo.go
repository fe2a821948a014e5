package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// AttemptUpdate captures the outcome of one webhook call applied to a
// delivery row.
type AttemptUpdate struct {
	Status             domain.WebhookDeliveryStatus
	AttemptCount       int
	LastAttemptAt      time.Time
	AcknowledgedAt     *time.Time
	ResponseStatusCode *int
	ResponseBody       *string
	Error              *string
	RetryTaskID        *string
}

type WebhookDeliveryRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	GetByID(ctx context.Context, id string) (*domain.WebhookDelivery, error)
	GetByNotificationID(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error)
	// ApplyAttempt records the outcome of one attempt. Terminal rows are
	// immutable; the guard refuses updates once acknowledged or failed.
	ApplyAttempt(ctx context.Context, id string, update AttemptUpdate) error
}

type GormWebhookDeliveryRepo struct {
	db *gorm.DB
}

func NewGormWebhookDeliveryRepo(db *gorm.DB) *GormWebhookDeliveryRepo {
	return &GormWebhookDeliveryRepo{db: db}
}

func (r *GormWebhookDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	model := webhookDeliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *webhookDeliveryModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.WebhookDelivery, error) {
	var model WebhookDeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return webhookDeliveryModelToDomain(&model), nil
}

func (r *GormWebhookDeliveryRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error) {
	var models []WebhookDeliveryModel
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.WebhookDelivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *webhookDeliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

func (r *GormWebhookDeliveryRepo) ApplyAttempt(ctx context.Context, id string, update AttemptUpdate) error {
	updates := map[string]any{
		"status":               update.Status,
		"attempt_count":        update.AttemptCount,
		"last_attempt_at":      update.LastAttemptAt,
		"acknowledged_at":      update.AcknowledgedAt,
		"response_status_code": update.ResponseStatusCode,
		"response_body":        update.ResponseBody,
		"error":                update.Error,
		"retry_task_id":        update.RetryTaskID,
	}

	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ? AND status IN ?", id, []domain.WebhookDeliveryStatus{
			domain.WebhookDeliveryPending,
			domain.WebhookDeliveryRetrying,
		}).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
