package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
)

var nonTerminalStatuses = []domain.Status{
	domain.StatusPending,
	domain.StatusQueued,
	domain.StatusSending,
}

var leasableStatuses = []domain.Status{
	domain.StatusPending,
	domain.StatusQueued,
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	// LeaseForSending takes the exclusive in-flight lease. It returns nil
	// without error when the notification is terminal, cancelled, or already
	// held by another worker.
	LeaseForSending(ctx context.Context, id string) (*domain.Notification, error)
	// ReleaseLease flips a SENDING notification back to QUEUED. ErrConflict
	// means the lease was already resolved elsewhere.
	ReleaseLease(ctx context.Context, id string) error
	MarkQueuedIfPending(ctx context.Context, id string) (bool, error)
	MarkDelivered(ctx context.Context, id string, externalID *string, at time.Time) error
	MarkFailed(ctx context.Context, id string, at time.Time) error
	// ScheduleRetry parks a SENDING notification back in PENDING, increments
	// the retry count, and records the scheduled task reference.
	ScheduleRetry(ctx context.Context, id string, taskID string) error
	ClearRetryTask(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string, at time.Time) error
	GetStaleSending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) LeaseForSending(ctx context.Context, id string) (*domain.Notification, error) {
	// A single guarded update is the lease: only one worker can move the row
	// out of a leasable status, everyone else sees zero rows affected.
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ?", id, leasableStatuses).
		Update("status", domain.StatusSending)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		// Cancellation wins the race; a terminal or already-leased record is
		// acked and skipped.
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// ReleaseLease hands a SENDING notification back to QUEUED so a broker
// redelivery can claim it without waiting for the stale-lease sweep.
func (r *GormNotificationRepo) ReleaseLease(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Update("status", domain.StatusQueued)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationRepo) MarkQueuedIfPending(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusQueued)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormNotificationRepo) MarkDelivered(ctx context.Context, id string, externalID *string, at time.Time) error {
	updates := map[string]any{
		"status":       domain.StatusDelivered,
		"delivered_at": at,
	}
	if externalID != nil {
		updates["external_id"] = *externalID
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(map[string]any{
			"status":    domain.StatusFailed,
			"failed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationRepo) ScheduleRetry(ctx context.Context, id string, taskID string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"retry_task_id": taskID,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationRepo) ClearRetryTask(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("retry_task_id", nil).Error
}

func (r *GormNotificationRepo) Cancel(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(map[string]any{
			"status":       domain.StatusCancelled,
			"cancelled_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyTerminal
	}
	return nil
}

func (r *GormNotificationRepo) GetStaleSending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusSending, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}
