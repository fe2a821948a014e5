package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/scheduler"
)

type fakeWebhookRepo struct {
	createFn             func(ctx context.Context, w *domain.Webhook) error
	updateFn             func(ctx context.Context, w *domain.Webhook) error
	deleteFn             func(ctx context.Context, id string) error
	getByIDFn            func(ctx context.Context, id string) (*domain.Webhook, error)
	listByTenantFn       func(ctx context.Context, tenantID string) ([]domain.Webhook, error)
	listActiveByTenantFn func(ctx context.Context, tenantID string) ([]domain.Webhook, error)
}

func (f *fakeWebhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	if f.createFn != nil {
		return f.createFn(ctx, w)
	}
	return nil
}

func (f *fakeWebhookRepo) Update(ctx context.Context, w *domain.Webhook) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, w)
	}
	return nil
}

func (f *fakeWebhookRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakeWebhookRepo) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWebhookRepo) ListByTenant(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
	if f.listByTenantFn != nil {
		return f.listByTenantFn(ctx, tenantID)
	}
	return nil, nil
}

func (f *fakeWebhookRepo) ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
	if f.listActiveByTenantFn != nil {
		return f.listActiveByTenantFn(ctx, tenantID)
	}
	return nil, nil
}

type fakeDeliveryRepo struct {
	createFn              func(ctx context.Context, d *domain.WebhookDelivery) error
	getByIDFn             func(ctx context.Context, id string) (*domain.WebhookDelivery, error)
	getByNotificationIDFn func(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error)
	applyAttemptFn        func(ctx context.Context, id string, update repository.AttemptUpdate) error
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.WebhookDelivery, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.WebhookDelivery, error) {
	if f.getByNotificationIDFn != nil {
		return f.getByNotificationIDFn(ctx, notificationID)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) ApplyAttempt(ctx context.Context, id string, update repository.AttemptUpdate) error {
	if f.applyAttemptFn != nil {
		return f.applyAttemptFn(ctx, id, update)
	}
	return nil
}

type fakeScheduler struct {
	scheduleFn func(ctx context.Context, delay time.Duration, kind scheduler.TaskKind, payload any) (string, error)
	cancelFn   func(ctx context.Context, taskID string) error
}

func (f *fakeScheduler) Schedule(ctx context.Context, delay time.Duration, kind scheduler.TaskKind, payload any) (string, error) {
	if f.scheduleFn != nil {
		return f.scheduleFn(ctx, delay, kind, payload)
	}
	return "task-1", nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, taskID string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, taskID)
	}
	return nil
}

type fakeCaller struct {
	sendFn func(ctx context.Context, hook domain.Webhook, payload EventPayload, attemptNumber int) Outcome
}

func (f *fakeCaller) Send(ctx context.Context, hook domain.Webhook, payload EventPayload, attemptNumber int) Outcome {
	if f.sendFn != nil {
		return f.sendFn(ctx, hook, payload, attemptNumber)
	}
	return Outcome{Class: ClassAcknowledged, StatusCode: 200}
}

func newTestDispatcher(t *testing.T, hooks *fakeWebhookRepo, deliveries *fakeDeliveryRepo, sched *fakeScheduler, caller *fakeCaller) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(hooks, deliveries, NewSender(), sched, 1, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	if caller != nil {
		d.sender = caller
	}
	return d
}

func deliveredNotification() domain.Notification {
	return domain.Notification{
		ID:         "n-1",
		TenantID:   "t-1",
		Channel:    domain.ChannelSMS,
		Priority:   domain.PriorityNormal,
		Recipient:  "+905551112233",
		Content:    "hello",
		Status:     domain.StatusDelivered,
		MaxRetries: 3,
	}
}

func TestEmitCreatesDeliveriesForSubscribedHooks(t *testing.T) {
	t.Parallel()

	hooks := &fakeWebhookRepo{
		listActiveByTenantFn: func(ctx context.Context, tenantID string) ([]domain.Webhook, error) {
			return []domain.Webhook{
				{ID: "wh-all", TenantID: tenantID, URL: "https://a.example", Active: true},
				{ID: "wh-delivered", TenantID: tenantID, URL: "https://b.example", Active: true, Events: []domain.EventType{domain.EventDelivered}},
				{ID: "wh-failed-only", TenantID: tenantID, URL: "https://c.example", Active: true, Events: []domain.EventType{domain.EventFailed}},
			}, nil
		},
	}

	created := make([]*domain.WebhookDelivery, 0, 2)
	deliveries := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.WebhookDelivery) error {
			created = append(created, d)
			return nil
		},
	}

	d := newTestDispatcher(t, hooks, deliveries, &fakeScheduler{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Emit(ctx, deliveredNotification(), domain.EventDelivered, ""); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	if len(created) != 2 {
		t.Fatalf("created %d deliveries, want 2 (all-events hook + delivered hook)", len(created))
	}
	for _, delivery := range created {
		if delivery.Status != domain.WebhookDeliveryPending {
			t.Fatalf("delivery status = %s, want PENDING", delivery.Status)
		}
		if len(delivery.Payload) == 0 {
			t.Fatal("payload should be serialized once at emit time")
		}
	}
	if len(d.jobs) != 2 {
		t.Fatalf("queued jobs = %d, want 2", len(d.jobs))
	}
}

func TestProcessAttemptAcknowledged(t *testing.T) {
	t.Parallel()

	hook := domain.Webhook{ID: "wh-1", TenantID: "t-1", URL: "https://a.example", Active: true}
	delivery := &domain.WebhookDelivery{
		ID:        "d-1",
		WebhookID: "wh-1",
		Event:     domain.EventDelivered,
		Status:    domain.WebhookDeliveryPending,
		Payload:   []byte(`{"event":"delivered","notification_id":"n-1"}`),
	}

	var applied *repository.AttemptUpdate
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookDelivery, error) {
			return delivery, nil
		},
		applyAttemptFn: func(ctx context.Context, id string, update repository.AttemptUpdate) error {
			applied = &update
			return nil
		},
	}
	hooks := &fakeWebhookRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Webhook, error) { return &hook, nil },
	}
	caller := &fakeCaller{
		sendFn: func(ctx context.Context, h domain.Webhook, p EventPayload, attemptNumber int) Outcome {
			if attemptNumber != 1 {
				t.Errorf("attempt number = %d, want 1", attemptNumber)
			}
			return Outcome{Class: ClassAcknowledged, StatusCode: 200, Body: "ok"}
		},
	}

	d := newTestDispatcher(t, hooks, deliveries, &fakeScheduler{}, caller)

	if err := d.processAttempt(context.Background(), "d-1"); err != nil {
		t.Fatalf("processAttempt() error = %v", err)
	}
	if applied == nil {
		t.Fatal("attempt should be recorded")
	}
	if applied.Status != domain.WebhookDeliveryAcknowledged {
		t.Fatalf("status = %s, want ACKNOWLEDGED", applied.Status)
	}
	if applied.AcknowledgedAt == nil {
		t.Fatal("acknowledged_at should be set")
	}
	if applied.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", applied.AttemptCount)
	}
}

func TestProcessAttemptClientErrorIsTerminal(t *testing.T) {
	t.Parallel()

	hook := domain.Webhook{ID: "wh-1", TenantID: "t-1", URL: "https://a.example", Active: true}
	delivery := &domain.WebhookDelivery{
		ID: "d-1", WebhookID: "wh-1", Status: domain.WebhookDeliveryPending,
		Payload: []byte(`{"event":"delivered"}`),
	}

	scheduled := false
	sched := &fakeScheduler{
		scheduleFn: func(ctx context.Context, delay time.Duration, kind scheduler.TaskKind, payload any) (string, error) {
			scheduled = true
			return "task-1", nil
		},
	}

	var applied *repository.AttemptUpdate
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookDelivery, error) { return delivery, nil },
		applyAttemptFn: func(ctx context.Context, id string, update repository.AttemptUpdate) error {
			applied = &update
			return nil
		},
	}
	hooks := &fakeWebhookRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Webhook, error) { return &hook, nil },
	}
	caller := &fakeCaller{
		sendFn: func(ctx context.Context, h domain.Webhook, p EventPayload, attemptNumber int) Outcome {
			return Outcome{Class: ClassClientError, StatusCode: 404, Error: "client error: HTTP 404"}
		},
	}

	d := newTestDispatcher(t, hooks, deliveries, sched, caller)

	if err := d.processAttempt(context.Background(), "d-1"); err != nil {
		t.Fatalf("processAttempt() error = %v", err)
	}
	if applied.Status != domain.WebhookDeliveryFailed {
		t.Fatalf("status = %s, want FAILED (4xx is never retried)", applied.Status)
	}
	if scheduled {
		t.Fatal("4xx must not schedule a retry")
	}
}

func TestProcessAttemptServerErrorSchedulesRetry(t *testing.T) {
	t.Parallel()

	hook := domain.Webhook{ID: "wh-1", TenantID: "t-1", URL: "https://a.example", Active: true}
	delivery := &domain.WebhookDelivery{
		ID: "d-1", WebhookID: "wh-1", Status: domain.WebhookDeliveryPending,
		AttemptCount: 0,
		Payload:      []byte(`{"event":"delivered"}`),
	}

	var gotDelay time.Duration
	var gotKind scheduler.TaskKind
	sched := &fakeScheduler{
		scheduleFn: func(ctx context.Context, delay time.Duration, kind scheduler.TaskKind, payload any) (string, error) {
			gotDelay = delay
			gotKind = kind
			return "task-7", nil
		},
	}

	var applied *repository.AttemptUpdate
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookDelivery, error) { return delivery, nil },
		applyAttemptFn: func(ctx context.Context, id string, update repository.AttemptUpdate) error {
			applied = &update
			return nil
		},
	}
	hooks := &fakeWebhookRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Webhook, error) { return &hook, nil },
	}
	caller := &fakeCaller{
		sendFn: func(ctx context.Context, h domain.Webhook, p EventPayload, attemptNumber int) Outcome {
			return Outcome{Class: ClassServerError, StatusCode: 503, Error: "server error: HTTP 503"}
		},
	}

	d := newTestDispatcher(t, hooks, deliveries, sched, caller)

	if err := d.processAttempt(context.Background(), "d-1"); err != nil {
		t.Fatalf("processAttempt() error = %v", err)
	}
	if applied.Status != domain.WebhookDeliveryRetrying {
		t.Fatalf("status = %s, want RETRYING", applied.Status)
	}
	if applied.RetryTaskID == nil || *applied.RetryTaskID != "task-7" {
		t.Fatalf("retry task id = %v, want task-7", applied.RetryTaskID)
	}
	if gotKind != scheduler.TaskWebhookRetry {
		t.Fatalf("task kind = %s, want %s", gotKind, scheduler.TaskWebhookRetry)
	}
	if gotDelay != 60*time.Second {
		t.Fatalf("first retry delay = %s, want 60s", gotDelay)
	}
}

func TestWebhookRetryDelayTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 60 * time.Second},
		{2, 300 * time.Second},
		{3, 900 * time.Second},
		{4, 900 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelayFor(tt.attempt); got != tt.want {
			t.Fatalf("retryDelayFor(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestProcessAttemptExhaustsBudgetAfterFourAttempts(t *testing.T) {
	t.Parallel()

	hook := domain.Webhook{ID: "wh-1", TenantID: "t-1", URL: "https://a.example", Active: true}
	// Three attempts already made; the fourth is the last.
	delivery := &domain.WebhookDelivery{
		ID: "d-1", WebhookID: "wh-1", Status: domain.WebhookDeliveryRetrying,
		AttemptCount: 3,
		Payload:      []byte(`{"event":"delivered"}`),
	}

	scheduled := false
	sched := &fakeScheduler{
		scheduleFn: func(ctx context.Context, delay time.Duration, kind scheduler.TaskKind, payload any) (string, error) {
			scheduled = true
			return "task-x", nil
		},
	}

	var applied *repository.AttemptUpdate
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookDelivery, error) { return delivery, nil },
		applyAttemptFn: func(ctx context.Context, id string, update repository.AttemptUpdate) error {
			applied = &update
			return nil
		},
	}
	hooks := &fakeWebhookRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Webhook, error) { return &hook, nil },
	}
	caller := &fakeCaller{
		sendFn: func(ctx context.Context, h domain.Webhook, p EventPayload, attemptNumber int) Outcome {
			if attemptNumber != 4 {
				t.Errorf("attempt number = %d, want 4", attemptNumber)
			}
			return Outcome{Class: ClassServerError, StatusCode: 500, Error: "server error: HTTP 500"}
		},
	}

	d := newTestDispatcher(t, hooks, deliveries, sched, caller)

	if err := d.processAttempt(context.Background(), "d-1"); err != nil {
		t.Fatalf("processAttempt() error = %v", err)
	}
	if scheduled {
		t.Fatal("no retry should be scheduled after the final attempt")
	}
	if applied.Status != domain.WebhookDeliveryFailed {
		t.Fatalf("status = %s, want FAILED", applied.Status)
	}
	if applied.AttemptCount != 4 {
		t.Fatalf("attempt count = %d, want 4", applied.AttemptCount)
	}
	if applied.Error == nil || *applied.Error != "max retries exceeded: server error: HTTP 500" {
		t.Fatalf("error = %v, want max retries exceeded message", applied.Error)
	}
}

func TestProcessAttemptSkipsTerminalDelivery(t *testing.T) {
	t.Parallel()

	delivery := &domain.WebhookDelivery{
		ID: "d-1", WebhookID: "wh-1", Status: domain.WebhookDeliveryAcknowledged,
		Payload: []byte(`{"event":"delivered"}`),
	}

	sent := false
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookDelivery, error) { return delivery, nil },
		applyAttemptFn: func(ctx context.Context, id string, update repository.AttemptUpdate) error {
			t.Fatal("terminal delivery must not be touched")
			return nil
		},
	}
	caller := &fakeCaller{
		sendFn: func(ctx context.Context, h domain.Webhook, p EventPayload, attemptNumber int) Outcome {
			sent = true
			return Outcome{Class: ClassAcknowledged}
		},
	}

	d := newTestDispatcher(t, &fakeWebhookRepo{}, deliveries, &fakeScheduler{}, caller)

	if err := d.processAttempt(context.Background(), "d-1"); err != nil {
		t.Fatalf("processAttempt() error = %v", err)
	}
	if sent {
		t.Fatal("no HTTP call should be made for a terminal delivery")
	}
}

func TestProcessAttemptSkipsDeactivatedHook(t *testing.T) {
	t.Parallel()

	hook := domain.Webhook{ID: "wh-1", TenantID: "t-1", URL: "https://a.example", Active: false}
	delivery := &domain.WebhookDelivery{
		ID: "d-1", WebhookID: "wh-1", Status: domain.WebhookDeliveryRetrying,
		Payload: []byte(`{"event":"delivered"}`),
	}

	sent := false
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookDelivery, error) { return delivery, nil },
	}
	hooks := &fakeWebhookRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Webhook, error) { return &hook, nil },
	}
	caller := &fakeCaller{
		sendFn: func(ctx context.Context, h domain.Webhook, p EventPayload, attemptNumber int) Outcome {
			sent = true
			return Outcome{Class: ClassAcknowledged}
		},
	}

	d := newTestDispatcher(t, hooks, deliveries, &fakeScheduler{}, caller)

	if err := d.processAttempt(context.Background(), "d-1"); err != nil {
		t.Fatalf("processAttempt() error = %v", err)
	}
	if sent {
		t.Fatal("deactivated hook should not receive calls")
	}
}

func TestProcessAttemptSwallowsApplyConflict(t *testing.T) {
	t.Parallel()

	hook := domain.Webhook{ID: "wh-1", TenantID: "t-1", URL: "https://a.example", Active: true}
	delivery := &domain.WebhookDelivery{
		ID: "d-1", WebhookID: "wh-1", Status: domain.WebhookDeliveryPending,
		Payload: []byte(`{"event":"delivered"}`),
	}

	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookDelivery, error) { return delivery, nil },
		applyAttemptFn: func(ctx context.Context, id string, update repository.AttemptUpdate) error {
			return domain.ErrConflict
		},
	}
	hooks := &fakeWebhookRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Webhook, error) { return &hook, nil },
	}

	d := newTestDispatcher(t, hooks, deliveries, &fakeScheduler{}, &fakeCaller{})

	if err := d.processAttempt(context.Background(), "d-1"); err != nil {
		t.Fatalf("processAttempt() should treat a lost race as a no-op, got %v", err)
	}
}
