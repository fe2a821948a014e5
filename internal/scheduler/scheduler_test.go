package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/repository"
)

type fakeTaskRepo struct {
	createFn   func(ctx context.Context, task *repository.ScheduledTask) error
	claimDueFn func(ctx context.Context, now time.Time, limit int) ([]repository.ScheduledTask, error)
	markDoneFn func(ctx context.Context, id string) error
	cancelFn   func(ctx context.Context, id string) error
}

func (f *fakeTaskRepo) Create(ctx context.Context, task *repository.ScheduledTask) error {
	if f.createFn != nil {
		return f.createFn(ctx, task)
	}
	return nil
}

func (f *fakeTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]repository.ScheduledTask, error) {
	if f.claimDueFn != nil {
		return f.claimDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeTaskRepo) MarkDone(ctx context.Context, id string) error {
	if f.markDoneFn != nil {
		return f.markDoneFn(ctx, id)
	}
	return nil
}

func (f *fakeTaskRepo) Cancel(ctx context.Context, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id)
	}
	return nil
}

func TestSchedulePersistsTaskWithDelay(t *testing.T) {
	t.Parallel()

	var created *repository.ScheduledTask
	repo := &fakeTaskRepo{
		createFn: func(ctx context.Context, task *repository.ScheduledTask) error {
			created = task
			return nil
		},
	}

	s, err := NewTaskScheduler(repo, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("NewTaskScheduler() error = %v", err)
	}

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	taskID, err := s.Schedule(context.Background(), 5*time.Minute, TaskNotificationRetry, map[string]string{
		"notificationId": "n-1",
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if taskID == "" {
		t.Fatal("task id should be returned")
	}
	if created == nil {
		t.Fatal("task should be persisted")
	}
	if created.Kind != string(TaskNotificationRetry) {
		t.Fatalf("kind = %s, want %s", created.Kind, TaskNotificationRetry)
	}
	if want := now.Add(5 * time.Minute); !created.RunAt.Equal(want) {
		t.Fatalf("runAt = %s, want %s", created.RunAt, want)
	}
}

func TestScanDueDispatchesToRegisteredHandler(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(map[string]string{"notificationId": "n-1"})
	done := make([]string, 0, 1)

	repo := &fakeTaskRepo{
		claimDueFn: func(ctx context.Context, now time.Time, limit int) ([]repository.ScheduledTask, error) {
			return []repository.ScheduledTask{
				{ID: "task-1", Kind: string(TaskNotificationRetry), Payload: payload},
			}, nil
		},
		markDoneFn: func(ctx context.Context, id string) error {
			done = append(done, id)
			return nil
		},
	}

	s, err := NewTaskScheduler(repo, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("NewTaskScheduler() error = %v", err)
	}

	var got json.RawMessage
	err = s.RegisterHandler(TaskNotificationRetry, func(ctx context.Context, raw json.RawMessage) error {
		got = raw
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}

	if err := s.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("handler payload = %s, want %s", got, payload)
	}
	if len(done) != 1 || done[0] != "task-1" {
		t.Fatalf("done tasks = %v, want [task-1]", done)
	}
}

func TestScanDueMarksDoneEvenWhenHandlerFails(t *testing.T) {
	t.Parallel()

	markedDone := false
	repo := &fakeTaskRepo{
		claimDueFn: func(ctx context.Context, now time.Time, limit int) ([]repository.ScheduledTask, error) {
			return []repository.ScheduledTask{
				{ID: "task-1", Kind: string(TaskWebhookRetry), Payload: []byte(`{}`)},
			}, nil
		},
		markDoneFn: func(ctx context.Context, id string) error {
			markedDone = true
			return nil
		},
	}

	s, err := NewTaskScheduler(repo, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("NewTaskScheduler() error = %v", err)
	}
	if err := s.RegisterHandler(TaskWebhookRetry, func(ctx context.Context, raw json.RawMessage) error {
		return errors.New("handler exploded")
	}); err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}

	if err := s.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	if !markedDone {
		t.Fatal("a failing handler should not leave the task claimed forever")
	}
}

func TestScanDueDropsUnhandledKinds(t *testing.T) {
	t.Parallel()

	markedDone := false
	repo := &fakeTaskRepo{
		claimDueFn: func(ctx context.Context, now time.Time, limit int) ([]repository.ScheduledTask, error) {
			return []repository.ScheduledTask{
				{ID: "task-1", Kind: "unknown_kind", Payload: []byte(`{}`)},
			}, nil
		},
		markDoneFn: func(ctx context.Context, id string) error {
			markedDone = true
			return nil
		},
	}

	s, err := NewTaskScheduler(repo, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("NewTaskScheduler() error = %v", err)
	}

	if err := s.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	if !markedDone {
		t.Fatal("unhandled task should be marked done, not rescanned forever")
	}
}

func TestCancelDelegatesToRepository(t *testing.T) {
	t.Parallel()

	cancelled := ""
	repo := &fakeTaskRepo{
		cancelFn: func(ctx context.Context, id string) error {
			cancelled = id
			return nil
		},
	}

	s, err := NewTaskScheduler(repo, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("NewTaskScheduler() error = %v", err)
	}

	if err := s.Cancel(context.Background(), "task-9"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled != "task-9" {
		t.Fatalf("cancelled = %s, want task-9", cancelled)
	}

	if err := s.Cancel(context.Background(), " "); err == nil {
		t.Fatal("blank task id should be rejected")
	}
}

func TestRegisterHandlerRejectsDuplicates(t *testing.T) {
	t.Parallel()

	s, err := NewTaskScheduler(&fakeTaskRepo{}, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("NewTaskScheduler() error = %v", err)
	}

	handler := func(ctx context.Context, raw json.RawMessage) error { return nil }
	if err := s.RegisterHandler(TaskNotificationRetry, handler); err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}
	if err := s.RegisterHandler(TaskNotificationRetry, handler); err == nil {
		t.Fatal("duplicate registration should be rejected")
	}
	if err := s.RegisterHandler("", handler); err == nil {
		t.Fatal("empty kind should be rejected")
	}
	if err := s.RegisterHandler(TaskWebhookRetry, nil); err == nil {
		t.Fatal("nil handler should be rejected")
	}
}
