package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/dedup"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/queue"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/scheduler"
	"go.uber.org/zap"
)

// SubmitRequest is a validated send submission.
type SubmitRequest struct {
	TenantID         string
	Channel          domain.Channel
	Priority         domain.Priority
	Recipient        string
	Content          string
	ExplicitProvider *string
	DedupEnabled     bool
}

// DispatchService accepts submissions, suppresses duplicates, and routes
// notifications into priority lanes.
type DispatchService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	index         dedup.Index
	publisher     queue.Publisher
	scheduler     scheduler.Scheduler
	emitter       EventEmitter
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	sleep         func(time.Duration)
}

func NewDispatchService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	index dedup.Index,
	publisher queue.Publisher,
	sched scheduler.Scheduler,
	emitter EventEmitter,
	logger *zap.Logger,
) (*DispatchService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if index == nil {
		return nil, fmt.Errorf("dedup index is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		notifications: notifications,
		attempts:      attempts,
		index:         index,
		publisher:     publisher,
		scheduler:     sched,
		emitter:       emitter,
		logger:        logger,
		now:           time.Now,
		sleep:         time.Sleep,
	}, nil
}

func (s *DispatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Submit creates a notification and routes it into its priority lane. When
// dedup is enabled and an identical submission landed within the TTL window,
// the existing notification is returned instead and the second boolean is
// true.
func (s *DispatchService) Submit(ctx context.Context, req SubmitRequest) (*domain.Notification, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	notification := &domain.Notification{
		ID:               uuid.NewString(),
		TenantID:         strings.TrimSpace(req.TenantID),
		Channel:          req.Channel,
		Priority:         req.Priority,
		Recipient:        strings.TrimSpace(req.Recipient),
		Content:          req.Content,
		Status:           domain.StatusPending,
		ExplicitProvider: normalizeOptionalString(req.ExplicitProvider),
		MaxRetries:       domain.DefaultMaxRetries,
	}
	if notification.Priority == "" {
		notification.Priority = domain.PriorityNormal
	}
	if err := notification.Validate(); err != nil {
		return nil, false, err
	}

	if req.DedupEnabled {
		fingerprint := dedup.Fingerprint(notification.TenantID, notification.Channel, notification.Recipient, notification.Content)
		notification.Fingerprint = &fingerprint

		result, err := s.index.CheckAndSet(ctx, fingerprint, notification.ID)
		if err != nil {
			return nil, false, fmt.Errorf("dedup check failed: %w", err)
		}
		if result.AlreadyExists {
			existing, err := s.lookupClaimedNotification(ctx, result.ExistingNotificationID)
			if err != nil {
				return nil, false, fmt.Errorf("failed to load deduplicated notification: %w", err)
			}
			if existing != nil {
				if s.metrics != nil {
					s.metrics.IncNotificationDeduplicated(notification.Channel.String())
				}
				s.logger.Info("duplicate submission short-circuited",
					zap.String("notificationId", existing.ID),
					zap.String("tenantId", notification.TenantID),
				)
				return existing, true, nil
			}
			// Stale index entry pointing at a record that never landed; fall
			// through and create a fresh notification.
			s.logger.Warn("dedup index points at missing notification, creating new",
				zap.String("existingId", result.ExistingNotificationID),
			)
		}
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, false, fmt.Errorf("failed to create notification: %w", err)
	}

	s.emit(ctx, *notification, domain.EventCreated, "")

	msg := queue.NotificationMessage{
		NotificationID: notification.ID,
		TenantID:       notification.TenantID,
		Channel:        notification.Channel,
		Priority:       notification.Priority,
	}
	lane := queue.LaneFor(notification.Priority)
	if err := s.publisher.Publish(ctx, lane, msg); err != nil {
		s.logger.Error("failed to publish notification",
			zap.String("notificationId", notification.ID),
			zap.String("lane", lane.String()),
			zap.Error(err),
		)
		if markErr := s.notifications.MarkFailed(ctx, notification.ID, s.now().UTC()); markErr != nil {
			s.logger.Error("failed to mark notification as failed after publish error",
				zap.String("notificationId", notification.ID),
				zap.Error(markErr),
			)
		}
		return nil, false, fmt.Errorf("failed to publish notification: %w", err)
	}

	if _, err := s.notifications.MarkQueuedIfPending(ctx, notification.ID); err != nil {
		return nil, false, fmt.Errorf("failed to mark notification queued: %w", err)
	}
	notification.Status = domain.StatusQueued

	return notification, false, nil
}

const (
	claimLookupAttempts = 5
	claimLookupDelay    = 20 * time.Millisecond
)

// lookupClaimedNotification resolves the notification a fingerprint claim
// points at. The claimant writes its row right after winning the
// fingerprint, so a miss here is usually this read racing that insert; poll
// briefly before declaring the claim stale. A nil, nil return means the
// record never landed.
func (s *DispatchService) lookupClaimedNotification(ctx context.Context, id string) (*domain.Notification, error) {
	for attempt := 1; ; attempt++ {
		existing, err := s.notifications.GetByID(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if attempt >= claimLookupAttempts {
			return nil, nil
		}
		s.sleep(claimLookupDelay)
	}
}

// Cancel flips a non-terminal notification to CANCELLED. A pending retry
// task is cancelled best-effort; a late fire is an explicit no-op anyway.
func (s *DispatchService) Cancel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	current, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.notifications.Cancel(ctx, id, s.now().UTC()); err != nil {
		return err
	}

	if current.RetryTaskID != nil {
		if err := s.scheduler.Cancel(ctx, *current.RetryTaskID); err != nil && !errors.Is(err, domain.ErrConflict) {
			s.logger.Warn("failed to cancel scheduled retry task",
				zap.String("notificationId", id),
				zap.String("taskId", *current.RetryTaskID),
				zap.Error(err),
			)
		}
	}

	cancelled, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	s.emit(ctx, *cancelled, domain.EventCancelled, "")

	return nil
}

// GetStatus returns the notification snapshot with its attempt history.
func (s *DispatchService) GetStatus(ctx context.Context, id string) (*domain.Notification, []domain.DeliveryAttempt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	notification, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	attempts, err := s.attempts.GetByNotificationID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return notification, attempts, nil
}

func (s *DispatchService) emit(ctx context.Context, n domain.Notification, event domain.EventType, errorMessage string) {
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

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
