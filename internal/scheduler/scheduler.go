package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"go.uber.org/zap"
)

// TaskKind identifies the handler a scheduled task fires against.
type TaskKind string

const (
	TaskNotificationRetry TaskKind = "notification_retry"
	TaskWebhookRetry      TaskKind = "webhook_retry"
)

// Scheduler is the generic delayed-requeue facility. Callbacks fire no
// earlier than the requested delay and at-least-once; handlers must be
// no-ops against already-terminal records.
type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, kind TaskKind, payload any) (string, error)
	Cancel(ctx context.Context, taskID string) error
}

// Handler runs a fired task. The raw payload is whatever Schedule serialized.
type Handler func(ctx context.Context, payload json.RawMessage) error

const (
	defaultScanInterval = 5 * time.Second
	defaultScanLimit    = 100
)

// TaskScheduler persists delayed tasks and fires due ones from a periodic
// scan. Durability lives in the task table, so a restart picks up where the
// previous process stopped.
type TaskScheduler struct {
	tasks    repository.TaskRepository
	logger   *zap.Logger
	interval time.Duration
	limit    int
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[TaskKind]Handler
}

func NewTaskScheduler(
	tasks repository.TaskRepository,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*TaskScheduler, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if limit <= 0 {
		limit = defaultScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TaskScheduler{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		limit:    limit,
		now:      time.Now,
		handlers: make(map[TaskKind]Handler),
	}, nil
}

// RegisterHandler binds a task kind to its callback. Must be called before
// Start; firing a kind with no handler is logged and dropped.
func (s *TaskScheduler) RegisterHandler(kind TaskKind, handler Handler) error {
	if strings.TrimSpace(string(kind)) == "" {
		return fmt.Errorf("task kind is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[kind]; exists {
		return fmt.Errorf("handler for kind %q is already registered", kind)
	}
	s.handlers[kind] = handler
	return nil
}

func (s *TaskScheduler) Schedule(ctx context.Context, delay time.Duration, kind TaskKind, payload any) (string, error) {
	if delay < 0 {
		delay = 0
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := &repository.ScheduledTask{
		ID:      uuid.NewString(),
		Kind:    string(kind),
		Payload: raw,
		RunAt:   s.now().UTC().Add(delay),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return "", fmt.Errorf("failed to persist scheduled task: %w", err)
	}

	return task.ID, nil
}

func (s *TaskScheduler) Cancel(ctx context.Context, taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task id is required")
	}
	return s.tasks.Cancel(ctx, taskID)
}

// Start runs the scan loop until context cancellation.
func (s *TaskScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due tasks do not wait for the first
	// ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler scan failed", zap.Error(err))
			}
		}
	}
}

func (s *TaskScheduler) scanDue(ctx context.Context) error {
	due, err := s.tasks.ClaimDue(ctx, s.now().UTC(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to claim due tasks: %w", err)
	}

	for i := range due {
		task := due[i]

		s.mu.RLock()
		handler, ok := s.handlers[TaskKind(task.Kind)]
		s.mu.RUnlock()

		if !ok {
			s.logger.Warn("dropping task with no registered handler",
				zap.String("taskId", task.ID),
				zap.String("kind", task.Kind),
			)
			if err := s.tasks.MarkDone(ctx, task.ID); err != nil {
				s.logger.Error("failed to mark unhandled task done",
					zap.String("taskId", task.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if err := handler(ctx, task.Payload); err != nil {
			s.logger.Error("scheduled task handler failed",
				zap.String("taskId", task.ID),
				zap.String("kind", task.Kind),
				zap.Error(err),
			)
		}

		if err := s.tasks.MarkDone(ctx, task.ID); err != nil {
			s.logger.Error("failed to mark task done",
				zap.String("taskId", task.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}
