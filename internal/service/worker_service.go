package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/provider"
	"github.com/kursadbilgin/notify-engine/internal/queue"
	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// retryDelay returns the backoff before the given retry. The key is the
// retry count at failure time: the first retry waits 5 minutes, the second
// 15, the third 30.
func retryDelay(retryCount int) time.Duration {
	switch retryCount {
	case 0:
		return 5 * time.Minute
	case 1:
		return 15 * time.Minute
	default:
		return 30 * time.Minute
	}
}

type retryTaskPayload struct {
	NotificationID string `json:"notificationId"`
}

// WorkerService consumes lane queues and drives notifications through the
// provider send path.
type WorkerService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	consumer      queue.Consumer
	publisher     queue.Publisher
	registry      *provider.Registry
	limiter       ratelimit.RateLimiter
	scheduler     scheduler.Scheduler
	emitter       EventEmitter
	logger        *zap.Logger
	metrics       *observability.Metrics

	highConcurrency    int
	defaultConcurrency int
	sendTimeout        time.Duration
	now                func() time.Time
}

func NewWorkerService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	consumer queue.Consumer,
	publisher queue.Publisher,
	registry *provider.Registry,
	limiter ratelimit.RateLimiter,
	sched scheduler.Scheduler,
	emitter EventEmitter,
	highConcurrency int,
	defaultConcurrency int,
	sendTimeout time.Duration,
	logger *zap.Logger,
) (*WorkerService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if highConcurrency < 1 {
		highConcurrency = 1
	}
	if defaultConcurrency < 1 {
		defaultConcurrency = 1
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		notifications:      notifications,
		attempts:           attempts,
		consumer:           consumer,
		publisher:          publisher,
		registry:           registry,
		limiter:            limiter,
		scheduler:          sched,
		emitter:            emitter,
		logger:             logger,
		highConcurrency:    highConcurrency,
		defaultConcurrency: defaultConcurrency,
		sendTimeout:        sendTimeout,
		now:                time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs the lane consumer pools until context cancellation. The high
// lane gets the larger pool so INSTANT/HIGH traffic is drained ahead of
// NORMAL/LOW without starving either side.
func (s *WorkerService) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.highConcurrency; i++ {
		g.Go(func() error {
			return s.consumeLane(ctx, queue.LaneHigh)
		})
	}
	for i := 0; i < s.defaultConcurrency; i++ {
		g.Go(func() error {
			return s.consumeLane(ctx, queue.LaneDefault)
		})
	}

	return g.Wait()
}

func (s *WorkerService) consumeLane(ctx context.Context, lane queue.Lane) error {
	return s.consumer.Consume(ctx, lane, func(ctx context.Context, msg queue.NotificationMessage) error {
		if s.metrics != nil {
			s.metrics.IncWorkerInFlight(lane.String())
			defer s.metrics.DecWorkerInFlight(lane.String())
		}
		return s.processMessage(ctx, msg)
	})
}

// RetryHandler fires when a scheduled notification retry comes due. The
// notification was parked back in PENDING when the retry was scheduled; a
// record in any other state means cancellation or a concurrent worker won,
// so the task is a no-op.
func (s *WorkerService) RetryHandler() scheduler.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var task retryTaskPayload
		if err := json.Unmarshal(payload, &task); err != nil {
			return fmt.Errorf("invalid retry task payload: %w", err)
		}

		notification, err := s.notifications.GetByID(ctx, task.NotificationID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if notification.Status != domain.StatusPending {
			return nil
		}

		msg := queue.NotificationMessage{
			NotificationID: notification.ID,
			TenantID:       notification.TenantID,
			Channel:        notification.Channel,
			Priority:       notification.Priority,
			Retry:          true,
		}
		if err := s.publisher.Publish(ctx, queue.LaneFor(notification.Priority), msg); err != nil {
			return fmt.Errorf("failed to republish notification %s: %w", notification.ID, err)
		}

		if _, err := s.notifications.MarkQueuedIfPending(ctx, notification.ID); err != nil {
			return err
		}
		if err := s.notifications.ClearRetryTask(ctx, notification.ID); err != nil {
			s.logger.Warn("failed to clear retry task reference",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
		}

		return nil
	}
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.NotificationMessage) error {
	// Throttle before claiming the record: a rate-limited message goes back
	// to the broker unleased, so the redelivery can acquire it immediately.
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, msg.Channel.String()); err != nil {
			return err
		}
	}

	notification, err := s.notifications.LeaseForSending(ctx, msg.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("dropping message for unknown notification",
			zap.String("notificationId", msg.NotificationID),
		)
		return nil
	}
	if err != nil {
		return err
	}
	if notification == nil {
		// Terminal or already leased elsewhere; ack and move on.
		return nil
	}

	if msg.Retry {
		s.emit(ctx, *notification, domain.EventRetryAttempted, "")
	}

	entry, err := s.registry.Select(notification.Channel, notification.ExplicitProvider)
	if err != nil {
		if errors.Is(err, domain.ErrNoProviderAvailable) {
			return s.releaseOnError(ctx, notification.ID, s.failNotification(ctx, notification, err.Error(), "no_provider"))
		}
		s.releaseLease(ctx, notification.ID)
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	start := s.now()
	result, sendErr := entry.Provider.Send(sendCtx, *notification)
	cancel()

	if s.metrics != nil {
		s.metrics.ObserveNotificationSendDuration(notification.Channel.String(), s.now().Sub(start))
	}

	attempt := s.recordAttempt(ctx, notification, entry.ID, result, sendErr)

	if sendErr == nil {
		return s.releaseOnError(ctx, notification.ID, s.completeDelivery(ctx, notification, result))
	}

	s.logger.Warn("provider send failed",
		zap.String("notificationId", notification.ID),
		zap.String("providerId", entry.ID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
		zap.Bool("transient", provider.IsTransient(sendErr)),
		zap.Error(sendErr),
	)

	if provider.IsTransient(sendErr) && !notification.RetriesExhausted() {
		return s.releaseOnError(ctx, notification.ID, s.scheduleRetry(ctx, notification, sendErr))
	}

	return s.releaseOnError(ctx, notification.ID, s.failNotification(ctx, notification, sendErr.Error(), "provider_error"))
}

// releaseOnError gives the SENDING lease back when an outcome transition
// failed, so the requeued message can reacquire it instead of stalling
// until the stale-lease sweep.
func (s *WorkerService) releaseOnError(ctx context.Context, id string, err error) error {
	if err != nil {
		s.releaseLease(ctx, id)
	}
	return err
}

func (s *WorkerService) releaseLease(ctx context.Context, id string) {
	// The release must land even when the worker context was cancelled.
	err := s.notifications.ReleaseLease(context.WithoutCancel(ctx), id)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		s.logger.Error("failed to release sending lease",
			zap.String("notificationId", id),
			zap.Error(err),
		)
	}
}

// recordAttempt appends the audit row for a provider call. Attempt history
// must survive even when the status update afterwards loses a race.
func (s *WorkerService) recordAttempt(
	ctx context.Context,
	notification *domain.Notification,
	providerID string,
	result *provider.SendResult,
	sendErr error,
) *domain.DeliveryAttempt {
	attempt := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: notification.ID,
		ProviderID:     providerID,
		AttemptNumber:  notification.RetryCount + 1,
		Outcome:        domain.AttemptDelivered,
	}
	if result != nil {
		if result.StatusCode > 0 {
			code := result.StatusCode
			attempt.StatusCode = &code
		}
		if result.Body != "" {
			body := result.Body
			attempt.ResponseBody = &body
		}
	}
	if sendErr != nil {
		attempt.Outcome = domain.AttemptFailed
		msg := sendErr.Error()
		attempt.Error = &msg
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.logger.Error("failed to persist delivery attempt",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
	}

	return attempt
}

func (s *WorkerService) completeDelivery(ctx context.Context, notification *domain.Notification, result *provider.SendResult) error {
	var externalID *string
	if result != nil && result.ExternalID != "" {
		id := result.ExternalID
		externalID = &id
	}

	err := s.notifications.MarkDelivered(ctx, notification.ID, externalID, s.now().UTC())
	if errors.Is(err, domain.ErrConflict) {
		// Cancelled while the provider call was in flight; the provider
		// already accepted the message, the record stays cancelled.
		return nil
	}
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncNotificationDelivered(notification.Channel.String())
	}

	notification.Status = domain.StatusDelivered
	notification.ExternalID = externalID
	s.emit(ctx, *notification, domain.EventDelivered, "")

	return nil
}

func (s *WorkerService) scheduleRetry(ctx context.Context, notification *domain.Notification, sendErr error) error {
	delay := retryDelay(notification.RetryCount)

	taskID, err := s.scheduler.Schedule(ctx, delay, scheduler.TaskNotificationRetry, retryTaskPayload{
		NotificationID: notification.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	err = s.notifications.ScheduleRetry(ctx, notification.ID, taskID)
	if errors.Is(err, domain.ErrConflict) {
		// Cancellation won the race. The orphaned task fires against a
		// terminal record and no-ops.
		return nil
	}
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncRetryScheduled(notification.Channel.String())
	}
	s.logger.Info("retry scheduled",
		zap.String("notificationId", notification.ID),
		zap.Int("retryCount", notification.RetryCount+1),
		zap.Duration("delay", delay),
	)

	notification.Status = domain.StatusPending
	notification.RetryCount++
	notification.RetryTaskID = &taskID
	s.emit(ctx, *notification, domain.EventRetryScheduled, sendErr.Error())

	return nil
}

func (s *WorkerService) failNotification(ctx context.Context, notification *domain.Notification, message string, reason string) error {
	now := s.now().UTC()
	err := s.notifications.MarkFailed(ctx, notification.ID, now)
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncNotificationFailed(notification.Channel.String(), reason)
	}

	notification.Status = domain.StatusFailed
	notification.FailedAt = &now
	s.emit(ctx, *notification, domain.EventFailed, message)

	return nil
}

func (s *WorkerService) emit(ctx context.Context, n domain.Notification, event domain.EventType, errorMessage string) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, n, event, errorMessage); err != nil {
		s.logger.Error("failed to emit lifecycle event",
			zap.String("notificationId", n.ID),
			zap.String("event", event.String()),
			zap.Error(err),
		)
	}
}
