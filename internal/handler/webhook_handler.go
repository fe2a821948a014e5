package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
)

type WebhookService interface {
	Create(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error)
	Update(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Webhook, error)
	List(ctx context.Context, tenantID string) ([]domain.Webhook, error)
	ListDeliveries(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error)
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService) error {
	h, err := NewWebhookHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/webhooks", h.CreateWebhook)
	v1.Get("/webhooks", h.ListWebhooks)
	v1.Get("/webhooks/:id", h.GetWebhook)
	v1.Put("/webhooks/:id", h.UpdateWebhook)
	v1.Delete("/webhooks/:id", h.DeleteWebhook)
	v1.Get("/notifications/:id/webhook-deliveries", h.ListDeliveries)

	return nil
}

type webhookRequest struct {
	TenantID   string       `json:"tenantId"`
	URL        string       `json:"url"`
	Active     *bool        `json:"active,omitempty"`
	Headers    []headerItem `json:"headers,omitempty"`
	Events     []string     `json:"events,omitempty"`
	MaxRetries int          `json:"maxRetries,omitempty"`
	TimeoutSec int          `json:"timeoutSec,omitempty"`
}

type headerItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type webhookResponse struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenantId"`
	URL        string       `json:"url"`
	Active     bool         `json:"active"`
	Headers    []headerItem `json:"headers,omitempty"`
	Events     []string     `json:"events,omitempty"`
	MaxRetries int          `json:"maxRetries"`
	TimeoutSec int          `json:"timeoutSec"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

type webhookDeliveryResponse struct {
	ID                 string     `json:"id"`
	WebhookID          string     `json:"webhookId"`
	Event              string     `json:"event"`
	Status             string     `json:"status"`
	AttemptCount       int        `json:"attemptCount"`
	LastAttemptAt      *time.Time `json:"lastAttemptAt,omitempty"`
	AcknowledgedAt     *time.Time `json:"acknowledgedAt,omitempty"`
	ResponseStatusCode *int       `json:"responseStatusCode,omitempty"`
	Error              *string    `json:"error,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func (h *WebhookHandler) CreateWebhook(c *fiber.Ctx) error {
	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	hook, err := requestToWebhook(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), hook)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toWebhookResponse(created))
}

func (h *WebhookHandler) UpdateWebhook(c *fiber.Ctx) error {
	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	hook, err := requestToWebhook(req)
	if err != nil {
		return toHTTPError(err)
	}
	hook.ID = strings.TrimSpace(c.Params("id"))

	updated, err := h.service.Update(c.Context(), hook)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toWebhookResponse(updated))
}

func (h *WebhookHandler) DeleteWebhook(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Delete(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) GetWebhook(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	hook, err := h.service.Get(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toWebhookResponse(hook))
}

func (h *WebhookHandler) ListWebhooks(c *fiber.Ctx) error {
	tenantID := strings.TrimSpace(c.Query("tenantId"))

	hooks, err := h.service.List(c.Context(), tenantID)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]webhookResponse, 0, len(hooks))
	for i := range hooks {
		responses = append(responses, toWebhookResponse(&hooks[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *WebhookHandler) ListDeliveries(c *fiber.Ctx) error {
	notificationID := strings.TrimSpace(c.Params("id"))

	deliveries, err := h.service.ListDeliveries(c.Context(), notificationID)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]webhookDeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		responses = append(responses, webhookDeliveryResponse{
			ID:                 d.ID,
			WebhookID:          d.WebhookID,
			Event:              d.Event.String(),
			Status:             d.Status.String(),
			AttemptCount:       d.AttemptCount,
			LastAttemptAt:      d.LastAttemptAt,
			AcknowledgedAt:     d.AcknowledgedAt,
			ResponseStatusCode: d.ResponseStatusCode,
			Error:              d.Error,
			CreatedAt:          d.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func requestToWebhook(req webhookRequest) (*domain.Webhook, error) {
	events := make([]domain.EventType, 0, len(req.Events))
	for _, raw := range req.Events {
		event, err := domain.ParseEventTypeFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid event %q", domain.ErrValidation, raw)
		}
		events = append(events, event)
	}

	headers := make([]domain.Header, 0, len(req.Headers))
	for _, h := range req.Headers {
		headers = append(headers, domain.Header{Name: h.Name, Value: h.Value})
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return &domain.Webhook{
		TenantID:   strings.TrimSpace(req.TenantID),
		URL:        strings.TrimSpace(req.URL),
		Active:     active,
		Headers:    headers,
		Events:     events,
		MaxRetries: req.MaxRetries,
		Timeout:    time.Duration(req.TimeoutSec) * time.Second,
	}, nil
}

func toWebhookResponse(hook *domain.Webhook) webhookResponse {
	if hook == nil {
		return webhookResponse{}
	}

	headers := make([]headerItem, 0, len(hook.Headers))
	for _, h := range hook.Headers {
		headers = append(headers, headerItem{Name: h.Name, Value: h.Value})
	}
	events := make([]string, 0, len(hook.Events))
	for _, e := range hook.Events {
		events = append(events, e.String())
	}

	return webhookResponse{
		ID:         hook.ID,
		TenantID:   hook.TenantID,
		URL:        hook.URL,
		Active:     hook.Active,
		Headers:    headers,
		Events:     events,
		MaxRetries: hook.RetryBudget(),
		TimeoutSec: int(hook.CallTimeout() / time.Second),
		CreatedAt:  hook.CreatedAt,
		UpdatedAt:  hook.UpdatedAt,
	}
}
