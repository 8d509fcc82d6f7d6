package workerpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func slowWorker(processed *int64, d time.Duration) WorkerFunc {
	return func(ctx context.Context, task *Task) *Result {
		time.Sleep(d)
		atomic.AddInt64(processed, 1)
		return &Result{TaskID: task.ID, Success: true}
	}
}

func submitN(t *testing.T, pool *Pool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		task := &Task{ID: fmt.Sprintf("t%d", i), Context: context.Background()}
		if err := pool.Submit(task); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
}

func TestStopDrainsBusyWorkers(t *testing.T) {
	var processed int64
	// Shutdown timeout left unset, as batch callers do.
	pool, err := New(Config{Workers: 2, QueueSize: 8}, slowWorker(&processed, 30*time.Millisecond), nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.Start()
	submitN(t, pool, 4)

	pool.Stop()

	results := 0
	for range pool.Results() {
		results++
	}
	if results != 4 {
		t.Fatalf("expected 4 results, got %d", results)
	}
	if got := atomic.LoadInt64(&processed); got != 4 {
		t.Fatalf("expected 4 processed tasks, got %d", got)
	}
}

func TestResultsClosesAfterShutdownTimeout(t *testing.T) {
	var processed int64
	cfg := Config{Workers: 1, QueueSize: 8, GracefulShutdownTimeout: time.Millisecond}
	pool, err := New(cfg, slowWorker(&processed, 50*time.Millisecond), nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.Start()
	submitN(t, pool, 2)

	// Stop returns on the timeout while the worker is still busy.
	pool.Stop()

	results := 0
	for range pool.Results() {
		results++
	}
	if results != 2 {
		t.Fatalf("expected 2 results, got %d", results)
	}
}

func TestSubmitAfterStopRejected(t *testing.T) {
	var processed int64
	pool, err := New(Config{Workers: 1, QueueSize: 2}, slowWorker(&processed, 0), nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.Start()
	pool.Stop()

	if err := pool.Submit(&Task{ID: "late"}); err == nil {
		t.Fatal("expected submit to fail after stop")
	}
}
