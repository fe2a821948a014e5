package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"gorm.io/gorm"
)

type WebhookRepository interface {
	Create(ctx context.Context, w *domain.Webhook) error
	Update(ctx context.Context, w *domain.Webhook) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Webhook, error)
	ListByTenant(ctx context.Context, tenantID string) ([]domain.Webhook, error)
	ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.Webhook, error)
}

type GormWebhookRepo struct {
	db *gorm.DB
}

func NewGormWebhookRepo(db *gorm.DB) *GormWebhookRepo {
	return &GormWebhookRepo{db: db}
}

func (r *GormWebhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	model := webhookModelFromDomain(w)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if w != nil {
		*w = *webhookModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookRepo) Update(ctx context.Context, w *domain.Webhook) error {
	model := webhookModelFromDomain(w)
	result := r.db.WithContext(ctx).
		Model(&WebhookModel{ID: model.ID}).
		Select("url", "active", "headers", "events", "max_retries", "timeout_sec").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&WebhookModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookRepo) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	var model WebhookModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return webhookModelToDomain(&model), nil
}

func (r *GormWebhookRepo) ListByTenant(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("tenant_id = ?", tenantID))
}

func (r *GormWebhookRepo) ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true))
}

func (r *GormWebhookRepo) list(ctx context.Context, query *gorm.DB) ([]domain.Webhook, error) {
	var models []WebhookModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	webhooks := make([]domain.Webhook, 0, len(models))
	for i := range models {
		webhooks = append(webhooks, *webhookModelToDomain(&models[i]))
	}
	return webhooks, nil
}
