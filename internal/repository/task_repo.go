package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// Scheduled task statuses. A task is claimed before its handler runs so two
// scanner passes never fire it concurrently; a crash after the claim is the
// at-least-once window.
const (
	TaskStatusPending   = "PENDING"
	TaskStatusClaimed   = "CLAIMED"
	TaskStatusDone      = "DONE"
	TaskStatusCancelled = "CANCELLED"
)

// ScheduledTask is a durable delayed callback owned by the retry scheduler.
type ScheduledTask struct {
	ID      string
	Kind    string
	Payload []byte
	RunAt   time.Time
}

type TaskRepository interface {
	Create(ctx context.Context, task *ScheduledTask) error
	// ClaimDue flips due PENDING tasks to CLAIMED and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledTask, error)
	MarkDone(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

type GormTaskRepo struct {
	db *gorm.DB
}

func NewGormTaskRepo(db *gorm.DB) *GormTaskRepo {
	return &GormTaskRepo{db: db}
}

func (r *GormTaskRepo) Create(ctx context.Context, task *ScheduledTask) error {
	model := &ScheduledTaskModel{
		ID:      task.ID,
		Kind:    task.Kind,
		Payload: task.Payload,
		RunAt:   task.RunAt,
		Status:  TaskStatusPending,
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledTask, error) {
	var models []ScheduledTaskModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", TaskStatusPending, now).
		Order("run_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]ScheduledTask, 0, len(models))
	for i := range models {
		result := r.db.WithContext(ctx).
			Model(&ScheduledTaskModel{}).
			Where("id = ? AND status = ?", models[i].ID, TaskStatusPending).
			Update("status", TaskStatusClaimed)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		claimed = append(claimed, ScheduledTask{
			ID:      models[i].ID,
			Kind:    models[i].Kind,
			Payload: models[i].Payload,
			RunAt:   models[i].RunAt,
		})
	}

	return claimed, nil
}

func (r *GormTaskRepo) MarkDone(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduledTaskModel{}).
		Where("id = ?", id).
		Update("status", TaskStatusDone)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormTaskRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduledTaskModel{}).
		Where("id = ? AND status = ?", id, TaskStatusPending).
		Update("status", TaskStatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
