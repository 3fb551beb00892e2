package taskqueue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redisc "github.com/dialect-so/core/internal/pkg/redis"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := redisc.Connect("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	return NewService(rc)
}

func TestEnqueueDedupReturnsExistingTask(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Enqueue(ctx, "scrape:persist", map[string]string{"id": "c1"}, "c1", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := svc.Enqueue(ctx, "scrape:persist", map[string]string{"id": "c1"}, "c1", "")
	if err != nil {
		t.Fatalf("enqueue again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate enqueue created new task %s, want %s", second.ID, first.ID)
	}

	// Same dedup key on a different type is an independent task.
	other, err := svc.Enqueue(ctx, "ai:summary", map[string]string{"id": "c1"}, "c1", "")
	if err != nil {
		t.Fatalf("enqueue other type: %v", err)
	}
	if other.ID == first.ID {
		t.Error("dedup key should be scoped per task type")
	}

	// No dedup key means every enqueue is a new task.
	a, _ := svc.Enqueue(ctx, "scrape:persist", nil, "", "")
	b, _ := svc.Enqueue(ctx, "scrape:persist", nil, "", "")
	if a.ID == b.ID {
		t.Error("enqueues without a dedup key must not collapse")
	}
}

func TestTerminalStatusReleasesDedupKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Enqueue(ctx, "ai:summary", map[string]string{"id": "c2"}, "c2", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Running is not terminal, the key stays held.
	if err := svc.UpdateStatus(ctx, first.ID, TaskRunning, nil, ""); err != nil {
		t.Fatalf("update running: %v", err)
	}
	held, err := svc.Enqueue(ctx, "ai:summary", map[string]string{"id": "c2"}, "c2", "")
	if err != nil {
		t.Fatalf("enqueue while running: %v", err)
	}
	if held.ID != first.ID {
		t.Error("dedup key released before the task finished")
	}

	if err := svc.UpdateStatus(ctx, first.ID, TaskCompleted, map[string]int{"chunks": 3}, ""); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	fresh, err := svc.Enqueue(ctx, "ai:summary", map[string]string{"id": "c2"}, "c2", "")
	if err != nil {
		t.Fatalf("enqueue after completion: %v", err)
	}
	if fresh.ID == first.ID {
		t.Error("dedup key should be released once the task completes")
	}

	stored, err := svc.GetByID(ctx, first.ID)
	if err != nil || stored == nil {
		t.Fatalf("get completed task: %v", err)
	}
	if stored.Status != TaskCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	if string(stored.Result) != `{"chunks":3}` {
		t.Errorf("result = %s", stored.Result)
	}
}

func TestGetByIDUnknownTask(t *testing.T) {
	svc := newTestService(t)
	task, err := svc.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task != nil {
		t.Errorf("expected nil task, got %+v", task)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Enqueue(ctx, "scrape:persist", nil, "", ""); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	failed, err := svc.Enqueue(ctx, "ai:summary", nil, "", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.UpdateStatus(ctx, failed.ID, TaskFailed, nil, "model unavailable"); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, total, err := svc.List(ctx, 1, 10, nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Fatalf("total = %d len = %d, want 4", total, len(all))
	}

	page, total, err := svc.List(ctx, 2, 3, nil, nil)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if total != 4 || len(page) != 1 {
		t.Fatalf("page 2: total = %d len = %d, want total 4 len 1", total, len(page))
	}

	taskType := "ai:summary"
	byType, total, err := svc.List(ctx, 1, 10, &taskType, nil)
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if total != 1 || byType[0].Error != "model unavailable" {
		t.Fatalf("by type: total = %d tasks = %+v", total, byType)
	}

	status := TaskPending
	pending, total, err := svc.List(ctx, 1, 10, nil, &status)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if total != 3 || len(pending) != 3 {
		t.Fatalf("by status: total = %d len = %d, want 3", total, len(pending))
	}
}

func TestCancelOnlyPendingTasks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	task, err := svc.Enqueue(ctx, "scrape:persist", nil, "", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Cancel(ctx, task.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := svc.GetByID(ctx, task.ID)
	if got.Status != TaskCancelled || got.Error != "cancelled by user" {
		t.Errorf("cancelled task = %+v", got)
	}

	running, err := svc.Enqueue(ctx, "scrape:persist", nil, "", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.UpdateStatus(ctx, running.ID, TaskRunning, nil, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.Cancel(ctx, running.ID); err == nil {
		t.Error("cancelling a running task should fail")
	}
	if err := svc.Cancel(ctx, "missing"); err == nil {
		t.Error("cancelling an unknown task should fail")
	}
}

func TestDeleteCompletedHonorsCutoff(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	done, err := svc.Enqueue(ctx, "scrape:persist", nil, "", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pending, err := svc.Enqueue(ctx, "scrape:persist", nil, "", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.UpdateStatus(ctx, done.ID, TaskCompleted, nil, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Cutoff before the tasks were created, nothing qualifies.
	if err := svc.DeleteCompleted(ctx, 1); err != nil {
		t.Fatalf("delete with early cutoff: %v", err)
	}
	if task, _ := svc.GetByID(ctx, done.ID); task == nil {
		t.Fatal("cutoff before creation must not delete the task")
	}

	// Zero cutoff prunes every finished task.
	if err := svc.DeleteCompleted(ctx, 0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if task, _ := svc.GetByID(ctx, done.ID); task != nil {
		t.Error("completed task should be gone")
	}
	if task, _ := svc.GetByID(ctx, pending.ID); task == nil {
		t.Error("pending task should remain")
	}

	// A released dedup slot accepts a fresh enqueue.
	dedup, err := svc.Enqueue(ctx, "ai:summary", nil, "slot", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.UpdateStatus(ctx, dedup.ID, TaskFailed, nil, "boom"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.DeleteCompleted(ctx, 0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	again, err := svc.Enqueue(ctx, "ai:summary", nil, "slot", "")
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if again.ID == dedup.ID {
		t.Error("pruned task still owns the dedup slot")
	}
}
