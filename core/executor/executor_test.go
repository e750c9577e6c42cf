package executor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsJobsInOrder(t *testing.T) {
	e := New()
	defer e.Close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		e.Schedule(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for jobs")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected jobs to run in schedule order, got %v", order)
		}
	}
}

func TestExecutorScheduleAfter(t *testing.T) {
	e := New()
	defer e.Close()

	var fired atomic.Bool
	done := make(chan struct{})
	e.ScheduleAfter(10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if !fired.Load() {
		t.Fatal("expected fired to be true")
	}
}

func TestExecutorScheduleAfterClose(t *testing.T) {
	e := New()
	e.Close()
	// Scheduling on a closed executor must not panic or block.
	e.Schedule(func() { t.Fatal("job should not run after close") })
	time.Sleep(10 * time.Millisecond)
}
