package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/service"
)

type NotificationService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*domain.Notification, bool, error)
	Cancel(ctx context.Context, id string) error
	GetStatus(ctx context.Context, id string) (*domain.Notification, []domain.DeliveryAttempt, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.SubmitNotification)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/:id/cancel", h.CancelNotification)

	return nil
}

type submitNotificationRequest struct {
	TenantID  string  `json:"tenantId"`
	Channel   string  `json:"channel"`
	Priority  string  `json:"priority"`
	Recipient string  `json:"recipient"`
	Content   string  `json:"content"`
	Provider  *string `json:"provider,omitempty"`
	Dedup     *bool   `json:"dedup,omitempty"`
}

type notificationResponse struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Channel     string     `json:"channel"`
	Priority    string     `json:"priority"`
	Recipient   string     `json:"recipient"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	ExternalID  *string    `json:"externalId,omitempty"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"maxRetries"`
	Duplicate   bool       `json:"duplicate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

type attemptResponse struct {
	ProviderID    string    `json:"providerId"`
	AttemptNumber int       `json:"attemptNumber"`
	Outcome       string    `json:"outcome"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type notificationStatusResponse struct {
	notificationResponse
	Attempts []attemptResponse `json:"attempts"`
}

func (h *NotificationHandler) SubmitNotification(c *fiber.Ctx) error {
	var req submitNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	submit, err := requestToSubmit(req)
	if err != nil {
		return toHTTPError(err)
	}

	notification, duplicate, err := h.service.Submit(c.Context(), submit)
	if err != nil {
		return toHTTPError(err)
	}

	status := fiber.StatusAccepted
	if duplicate {
		status = fiber.StatusOK
	}

	resp := toNotificationResponse(notification)
	resp.Duplicate = duplicate
	return c.Status(status).JSON(resp)
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	notification, attempts, err := h.service.GetStatus(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, attemptResponse{
			ProviderID:    attempt.ProviderID,
			AttemptNumber: attempt.AttemptNumber,
			Outcome:       attempt.Outcome.String(),
			StatusCode:    attempt.StatusCode,
			Error:         attempt.Error,
			CreatedAt:     attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(notificationStatusResponse{
		notificationResponse: toNotificationResponse(notification),
		Attempts:             items,
	})
}

func (h *NotificationHandler) CancelNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"status":         domain.StatusCancelled.String(),
	})
}

func requestToSubmit(req submitNotificationRequest) (service.SubmitRequest, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return service.SubmitRequest{}, err
	}

	priority := domain.PriorityNormal
	if strings.TrimSpace(req.Priority) != "" {
		priority, err = domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return service.SubmitRequest{}, err
		}
	}

	dedup := true
	if req.Dedup != nil {
		dedup = *req.Dedup
	}

	return service.SubmitRequest{
		TenantID:         strings.TrimSpace(req.TenantID),
		Channel:          channel,
		Priority:         priority,
		Recipient:        strings.TrimSpace(req.Recipient),
		Content:          req.Content,
		ExplicitProvider: req.Provider,
		DedupEnabled:     dedup,
	}, nil
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:          n.ID,
		TenantID:    n.TenantID,
		Channel:     n.Channel.String(),
		Priority:    n.Priority.String(),
		Recipient:   n.Recipient,
		Content:     n.Content,
		Status:      n.Status.String(),
		ExternalID:  n.ExternalID,
		RetryCount:  n.RetryCount,
		MaxRetries:  n.MaxRetries,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
		DeliveredAt: n.DeliveredAt,
		FailedAt:    n.FailedAt,
		CancelledAt: n.CancelledAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
