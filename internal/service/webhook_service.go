package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"go.uber.org/zap"
)

// WebhookService manages tenant webhook endpoint configuration.
type WebhookService struct {
	webhooks   repository.WebhookRepository
	deliveries repository.WebhookDeliveryRepository
	logger     *zap.Logger
}

func NewWebhookService(
	webhooks repository.WebhookRepository,
	deliveries repository.WebhookDeliveryRepository,
	logger *zap.Logger,
) (*WebhookService, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("webhook delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		webhooks:   webhooks,
		deliveries: deliveries,
		logger:     logger,
	}, nil
}

func (s *WebhookService) Create(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error) {
	if hook == nil {
		return nil, fmt.Errorf("%w: webhook is required", domain.ErrValidation)
	}

	hook.ID = uuid.NewString()
	hook.TenantID = strings.TrimSpace(hook.TenantID)
	hook.URL = strings.TrimSpace(hook.URL)
	if err := hook.Validate(); err != nil {
		return nil, err
	}

	if err := s.webhooks.Create(ctx, hook); err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}

	s.logger.Info("webhook registered",
		zap.String("webhookId", hook.ID),
		zap.String("tenantId", hook.TenantID),
	)
	return hook, nil
}

func (s *WebhookService) Update(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error) {
	if hook == nil || strings.TrimSpace(hook.ID) == "" {
		return nil, fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}

	current, err := s.webhooks.GetByID(ctx, hook.ID)
	if err != nil {
		return nil, err
	}

	hook.TenantID = current.TenantID
	hook.URL = strings.TrimSpace(hook.URL)
	if err := hook.Validate(); err != nil {
		return nil, err
	}

	if err := s.webhooks.Update(ctx, hook); err != nil {
		return nil, err
	}

	return s.webhooks.GetByID(ctx, hook.ID)
}

func (s *WebhookService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.Delete(ctx, id)
}

func (s *WebhookService) Get(ctx context.Context, id string) (*domain.Webhook, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.GetByID(ctx, id)
}

func (s *WebhookService) List(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	return s.webhooks.ListByTenant(ctx, tenantID)
}

// ListDeliveries returns the delivery attempt log for a notification so a
// tenant can audit which callbacks fired and how they ended.
func (s *WebhookService) ListDeliveries(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error) {
	if strings.TrimSpace(notificationID) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.deliveries.GetByNotificationID(ctx, notificationID)
}
