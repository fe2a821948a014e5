package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/scheduler"
	"go.uber.org/zap"
)

const (
	defaultStaleThreshold = 5 * time.Minute
	recoveryScanBatch     = 100
)

// RecoveryService sweeps notifications stuck in SENDING after a worker
// crash and pushes them back through the retry path. A recovery pass counts
// against the retry budget like any other failed attempt.
type RecoveryService struct {
	notifications repository.NotificationRepository
	scheduler     scheduler.Scheduler
	emitter       EventEmitter
	logger        *zap.Logger
	metrics       *observability.Metrics

	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewRecoveryService(
	notifications repository.NotificationRepository,
	sched scheduler.Scheduler,
	emitter EventEmitter,
	threshold time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) (*RecoveryService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if threshold <= 0 {
		threshold = defaultStaleThreshold
	}
	if interval <= 0 {
		interval = threshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryService{
		notifications: notifications,
		scheduler:     sched,
		emitter:       emitter,
		logger:        logger,
		threshold:     threshold,
		interval:      interval,
		now:           time.Now,
	}, nil
}

func (s *RecoveryService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs the sweep loop until context cancellation.
func (s *RecoveryService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("recovery sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("recovery sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep finds notifications held in SENDING past the staleness threshold
// and either schedules an immediate retry or, when the budget is spent,
// fails them.
func (s *RecoveryService) Sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.threshold)

	stale, err := s.notifications.GetStaleSending(ctx, cutoff, recoveryScanBatch)
	if err != nil {
		return fmt.Errorf("failed to query stale notifications: %w", err)
	}

	for i := range stale {
		notification := stale[i]
		if err := s.recover(ctx, &notification); err != nil {
			s.logger.Error("failed to recover stale notification",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (s *RecoveryService) recover(ctx context.Context, notification *domain.Notification) error {
	if notification.RetriesExhausted() {
		now := s.now().UTC()
		err := s.notifications.MarkFailed(ctx, notification.ID, now)
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		if err != nil {
			return err
		}

		if s.metrics != nil {
			s.metrics.IncStaleSendingRecovered()
			s.metrics.IncNotificationFailed(notification.Channel.String(), "stale_sending")
		}
		s.logger.Warn("stale notification failed, retry budget exhausted",
			zap.String("notificationId", notification.ID),
			zap.Int("retryCount", notification.RetryCount),
		)

		notification.Status = domain.StatusFailed
		notification.FailedAt = &now
		s.emit(ctx, *notification, domain.EventFailed, "delivery interrupted: worker lost while sending")
		return nil
	}

	taskID, err := s.scheduler.Schedule(ctx, 0, scheduler.TaskNotificationRetry, retryTaskPayload{
		NotificationID: notification.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule recovery retry: %w", err)
	}

	err = s.notifications.ScheduleRetry(ctx, notification.ID, taskID)
	if errors.Is(err, domain.ErrConflict) {
		// Something else moved the record since the scan; the orphaned task
		// no-ops when it fires.
		return nil
	}
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncStaleSendingRecovered()
		s.metrics.IncRetryScheduled(notification.Channel.String())
	}
	s.logger.Info("stale notification requeued",
		zap.String("notificationId", notification.ID),
		zap.Int("retryCount", notification.RetryCount+1),
	)

	notification.Status = domain.StatusPending
	notification.RetryCount++
	notification.RetryTaskID = &taskID
	s.emit(ctx, *notification, domain.EventRetryScheduled, "delivery interrupted: worker lost while sending")

	return nil
}

func (s *RecoveryService) emit(ctx context.Context, n domain.Notification, event domain.EventType, errorMessage string) {
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
