package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/transport"
	"go.uber.org/zap"
)

type stubWebhookService struct {
	createFn         func(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error)
	updateFn         func(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error)
	deleteFn         func(ctx context.Context, id string) error
	getFn            func(ctx context.Context, id string) (*domain.Webhook, error)
	listFn           func(ctx context.Context, tenantID string) ([]domain.Webhook, error)
	listDeliveriesFn func(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error)
}

func (s *stubWebhookService) Create(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error) {
	return s.createFn(ctx, hook)
}

func (s *stubWebhookService) Update(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error) {
	return s.updateFn(ctx, hook)
}

func (s *stubWebhookService) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubWebhookService) Get(ctx context.Context, id string) (*domain.Webhook, error) {
	return s.getFn(ctx, id)
}

func (s *stubWebhookService) List(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
	return s.listFn(ctx, tenantID)
}

func (s *stubWebhookService) ListDeliveries(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error) {
	return s.listDeliveriesFn(ctx, notificationID)
}

func newWebhookTestApp(t *testing.T, svc WebhookService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterWebhookRoutes(app, svc); err != nil {
		t.Fatalf("RegisterWebhookRoutes() error = %v", err)
	}
	return app
}

func TestCreateWebhook(t *testing.T) {
	t.Parallel()

	var captured *domain.Webhook
	svc := &stubWebhookService{
		createFn: func(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error) {
			captured = hook
			created := *hook
			created.ID = "wh-1"
			return &created, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	body := `{
		"tenantId": "t-1",
		"url": "https://example.com/hooks",
		"events": ["delivered", "failed"],
		"headers": [{"name": "Authorization", "value": "Bearer tok"}],
		"maxRetries": 2,
		"timeoutSec": 5
	}`
	resp, raw := performRequest(t, app, http.MethodPost, "/v1/webhooks", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, raw)
	}

	if captured == nil {
		t.Fatal("service should receive the webhook")
	}
	if !captured.Active {
		t.Fatal("active should default to true")
	}
	if captured.Timeout != 5*time.Second {
		t.Fatalf("timeout = %s, want 5s", captured.Timeout)
	}
	if len(captured.Events) != 2 || captured.Events[0] != domain.EventDelivered {
		t.Fatalf("events = %v", captured.Events)
	}

	var got webhookResponse
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "wh-1" || got.URL != "https://example.com/hooks" {
		t.Fatalf("response = %+v", got)
	}
}

func TestCreateWebhookRejectsUnknownEvent(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		createFn: func(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error) {
			t.Fatal("service should not be reached with an invalid event")
			return nil, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	body := `{"tenantId":"t-1","url":"https://example.com","events":["exploded"]}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/webhooks", body)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateWebhookUsesPathID(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		updateFn: func(ctx context.Context, hook *domain.Webhook) (*domain.Webhook, error) {
			if hook.ID != "wh-1" {
				t.Fatalf("id = %q, want wh-1 from the path", hook.ID)
			}
			return hook, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	body := `{"tenantId":"t-1","url":"https://example.com/v2"}`
	resp, _ := performRequest(t, app, http.MethodPut, "/v1/webhooks/wh-1", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestDeleteWebhook(t *testing.T) {
	t.Parallel()

	deleted := ""
	svc := &stubWebhookService{
		deleteFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodDelete, "/v1/webhooks/wh-1", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if deleted != "wh-1" {
		t.Fatalf("deleted id = %q", deleted)
	}
}

func TestGetWebhookMissingMapsTo404(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		getFn: func(ctx context.Context, id string) (*domain.Webhook, error) {
			return nil, domain.ErrNotFound
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/webhooks/ghost", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListWebhooksPassesTenantFilter(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		listFn: func(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
			if tenantID != "t-1" {
				t.Fatalf("tenant = %q, want t-1", tenantID)
			}
			return []domain.Webhook{{ID: "wh-1", TenantID: tenantID, URL: "https://example.com", Active: true}}, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, raw := performRequest(t, app, http.MethodGet, "/v1/webhooks?tenantId=t-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Data []webhookResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Data) != 1 || got.Data[0].ID != "wh-1" {
		t.Fatalf("data = %+v", got.Data)
	}
}

func TestListWebhookDeliveries(t *testing.T) {
	t.Parallel()

	code := 200
	svc := &stubWebhookService{
		listDeliveriesFn: func(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error) {
			if notificationID != "n-1" {
				t.Fatalf("notification id = %q, want n-1", notificationID)
			}
			return []domain.WebhookDelivery{{
				ID:                 "wd-1",
				WebhookID:          "wh-1",
				Event:              domain.EventDelivered,
				Status:             domain.WebhookDeliveryAcknowledged,
				AttemptCount:       1,
				ResponseStatusCode: &code,
			}}, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, raw := performRequest(t, app, http.MethodGet, "/v1/notifications/n-1/webhook-deliveries", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Data []webhookDeliveryResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Data) != 1 || got.Data[0].Event != "delivered" || got.Data[0].Status != "ACKNOWLEDGED" {
		t.Fatalf("data = %+v", got.Data)
	}
}
