package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minDispatcherConcurrency = 1
	jobBuffer                = 256
)

// retryDelays is the webhook backoff table, 1-based by attempt count after
// the first failure.
var retryDelays = map[int]time.Duration{
	1: 60 * time.Second,
	2: 300 * time.Second,
	3: 900 * time.Second,
}

func retryDelayFor(attemptCount int) time.Duration {
	if delay, ok := retryDelays[attemptCount]; ok {
		return delay
	}
	return retryDelays[len(retryDelays)]
}

type retryPayload struct {
	DeliveryID string `json:"delivery_id"`
}

// caller abstracts the HTTP sender so tests can fake outcomes.
type caller interface {
	Send(ctx context.Context, hook domain.Webhook, payload EventPayload, attemptNumber int) Outcome
}

// Dispatcher forwards notification lifecycle events to tenant webhooks. It
// runs its own worker pool so a slow tenant endpoint never starves
// notification delivery.
type Dispatcher struct {
	webhooks    repository.WebhookRepository
	deliveries  repository.WebhookDeliveryRepository
	sender      caller
	scheduler   scheduler.Scheduler
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	jobs        chan string
}

func NewDispatcher(
	webhooks repository.WebhookRepository,
	deliveries repository.WebhookDeliveryRepository,
	sender *Sender,
	sched scheduler.Scheduler,
	concurrency int,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("webhook delivery repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if concurrency < minDispatcherConcurrency {
		concurrency = minDispatcherConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		webhooks:    webhooks,
		deliveries:  deliveries,
		sender:      sender,
		scheduler:   sched,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		jobs:        make(chan string, jobBuffer),
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Start runs the delivery pool until context cancellation.
func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			d.logger.Info("webhook worker started", zap.Int("workerId", workerID))
			for {
				select {
				case <-groupCtx.Done():
					d.logger.Info("webhook worker stopped", zap.Int("workerId", workerID))
					return nil
				case deliveryID := <-d.jobs:
					if err := d.processAttempt(groupCtx, deliveryID); err != nil {
						d.logger.Error("webhook attempt failed",
							zap.String("deliveryId", deliveryID),
							zap.Error(err),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

// Emit fans a lifecycle event out to every active subscribed webhook of the
// owning tenant. Delivery rows are created synchronously; the first HTTP
// attempt runs on the dispatcher pool.
func (d *Dispatcher) Emit(ctx context.Context, n domain.Notification, event domain.EventType, errorMessage string) error {
	hooks, err := d.webhooks.ListActiveByTenant(ctx, n.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load webhooks for tenant %s: %w", n.TenantID, err)
	}

	payload := BuildPayload(n, event, errorMessage)
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	for i := range hooks {
		hook := hooks[i]
		if !hook.SubscribesTo(event) {
			continue
		}

		delivery := &domain.WebhookDelivery{
			ID:             uuid.NewString(),
			WebhookID:      hook.ID,
			NotificationID: n.ID,
			Event:          event,
			Status:         domain.WebhookDeliveryPending,
			AttemptCount:   0,
			Payload:        raw,
			CreatedAt:      d.now().UTC(),
		}
		if err := d.deliveries.Create(ctx, delivery); err != nil {
			d.logger.Error("failed to create webhook delivery",
				zap.String("webhookId", hook.ID),
				zap.String("notificationId", n.ID),
				zap.String("event", event.String()),
				zap.Error(err),
			)
			continue
		}

		d.enqueue(ctx, delivery.ID)
	}

	return nil
}

// RetryHandler returns the scheduler callback that re-runs a delivery
// attempt when its retry timer fires.
func (d *Dispatcher) RetryHandler() scheduler.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p retryPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("invalid webhook retry payload: %w", err)
		}
		d.enqueue(ctx, p.DeliveryID)
		return nil
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, deliveryID string) {
	select {
	case d.jobs <- deliveryID:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) processAttempt(ctx context.Context, deliveryID string) error {
	delivery, err := d.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load webhook delivery: %w", err)
	}

	// A late-firing retry against a finished sequence is a no-op.
	if delivery.Status.IsTerminal() {
		return nil
	}

	hook, err := d.webhooks.GetByID(ctx, delivery.WebhookID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("webhook removed mid-delivery, skipping",
				zap.String("deliveryId", deliveryID),
			)
			return nil
		}
		return fmt.Errorf("failed to load webhook: %w", err)
	}
	if !hook.Active {
		d.logger.Info("webhook deactivated mid-delivery, skipping",
			zap.String("deliveryId", deliveryID),
		)
		return nil
	}

	var payload EventPayload
	if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
		return fmt.Errorf("corrupt delivery payload: %w", err)
	}

	attemptNumber := delivery.AttemptCount + 1

	sendStart := d.now()
	outcome := d.sender.Send(ctx, *hook, payload, attemptNumber)
	if d.metrics != nil {
		d.metrics.ObserveWebhookDeliveryDuration(payload.Event, d.now().Sub(sendStart))
	}

	update := repository.AttemptUpdate{
		AttemptCount:  attemptNumber,
		LastAttemptAt: d.now().UTC(),
	}
	if outcome.StatusCode > 0 {
		code := outcome.StatusCode
		update.ResponseStatusCode = &code
	}
	if outcome.Body != "" {
		body := outcome.Body
		update.ResponseBody = &body
	}
	if outcome.Error != "" {
		errText := outcome.Error
		update.Error = &errText
	}

	switch outcome.Class {
	case ClassAcknowledged:
		ackedAt := d.now().UTC()
		update.Status = domain.WebhookDeliveryAcknowledged
		update.AcknowledgedAt = &ackedAt
		if d.metrics != nil {
			d.metrics.IncWebhookAttempt(payload.Event, "acknowledged")
		}

	case ClassClientError:
		update.Status = domain.WebhookDeliveryFailed
		if d.metrics != nil {
			d.metrics.IncWebhookAttempt(payload.Event, "client_error")
		}

	case ClassServerError:
		if attemptNumber > hook.RetryBudget() {
			update.Status = domain.WebhookDeliveryFailed
			errText := fmt.Sprintf("max retries exceeded: %s", outcome.Error)
			update.Error = &errText
			if d.metrics != nil {
				d.metrics.IncWebhookAttempt(payload.Event, "exhausted")
			}
			break
		}

		taskID, err := d.scheduler.Schedule(
			ctx,
			retryDelayFor(attemptNumber),
			scheduler.TaskWebhookRetry,
			retryPayload{DeliveryID: delivery.ID},
		)
		if err != nil {
			return fmt.Errorf("failed to schedule webhook retry: %w", err)
		}
		update.Status = domain.WebhookDeliveryRetrying
		update.RetryTaskID = &taskID
		if d.metrics != nil {
			d.metrics.IncWebhookAttempt(payload.Event, "retry_scheduled")
		}
	}

	if err := d.deliveries.ApplyAttempt(ctx, delivery.ID, update); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost to a concurrent terminal transition; the row is immutable now.
			return nil
		}
		return fmt.Errorf("failed to record webhook attempt: %w", err)
	}

	return nil
}
