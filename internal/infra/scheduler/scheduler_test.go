//go:build !integration

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestTask(t *testing.T) {
	t.Run("should run immediately and stop when the func returns false", func(t *testing.T) {
		var runs int32
		task := NewTask("count", time.Millisecond, func(ctx context.Context) bool {
			return atomic.AddInt32(&runs, 1) < 3
		}, WithImmediate())
		task.Start(context.Background())
		waitDone(t, task)
		if got := atomic.LoadInt32(&runs); got != 3 {
			t.Errorf("runs = %d, want 3", got)
		}
		if task.Running() {
			t.Error("task should not be running")
		}
	})

	t.Run("should not run again after Stop returns", func(t *testing.T) {
		var runs int32
		task := NewTask("forever", time.Millisecond, func(ctx context.Context) bool {
			atomic.AddInt32(&runs, 1)
			return true
		})
		task.Start(context.Background())
		time.Sleep(10 * time.Millisecond)
		task.Stop()
		after := atomic.LoadInt32(&runs)
		time.Sleep(10 * time.Millisecond)
		if atomic.LoadInt32(&runs) != after {
			t.Error("func ran after Stop")
		}
		task.Stop()
	})

	t.Run("should allow Cancel from inside the func", func(t *testing.T) {
		var task *Task
		task = NewTask("self", time.Millisecond, func(ctx context.Context) bool {
			task.Cancel()
			return true
		}, WithImmediate())
		task.Start(context.Background())
		waitDone(t, task)
	})

	t.Run("should end with the parent context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		task := NewTask("parent", time.Hour, func(ctx context.Context) bool { return true })
		task.Start(ctx)
		cancel()
		waitDone(t, task)
	})

	t.Run("should report a never-started task as done", func(t *testing.T) {
		task := NewTask("idle", 0, func(ctx context.Context) bool { return true })
		if task.Running() {
			t.Error("never-started task must not be running")
		}
	})

	t.Run("should restart after finishing on its own", func(t *testing.T) {
		var runs int32
		task := NewTask("once", time.Millisecond, func(ctx context.Context) bool {
			atomic.AddInt32(&runs, 1)
			return false
		}, WithImmediate())
		task.Start(context.Background())
		waitDone(t, task)
		task.Start(context.Background())
		waitDone(t, task)
		if got := atomic.LoadInt32(&runs); got != 2 {
			t.Errorf("runs = %d, want 2", got)
		}
	})
}
