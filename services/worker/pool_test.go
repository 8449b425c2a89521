package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunCountsOutcomes(t *testing.T) {
	pool := NewPool(3)

	summary := pool.Run(context.Background(), 6, func(_ context.Context, i int) (Outcome, error) {
		switch i % 3 {
		case 0:
			return Success, nil
		case 1:
			return Empty, nil
		default:
			return Failed, errors.New("boom")
		}
	})

	want := Summary{Total: 6, SuccessCount: 2, EmptyCount: 2, FailCount: 4}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const limit = 4
	pool := NewPool(limit)

	var inFlight, peak int64
	summary := pool.Run(context.Background(), 20, func(_ context.Context, _ int) (Outcome, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return Success, nil
	})

	if summary.SuccessCount != 20 {
		t.Fatalf("SuccessCount = %d, want 20", summary.SuccessCount)
	}
	if got := atomic.LoadInt64(&peak); got > limit {
		t.Errorf("peak concurrency = %d, want at most %d", got, limit)
	}
}

func TestRunIsolatesPanics(t *testing.T) {
	pool := NewPool(2)

	summary := pool.Run(context.Background(), 3, func(_ context.Context, i int) (Outcome, error) {
		if i == 1 {
			panic("bad unit")
		}
		return Success, nil
	})

	want := Summary{Total: 3, SuccessCount: 2, FailCount: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
}

func TestRunCancelledContextFailsRemaining(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())

	var started int64
	var once sync.Once
	summary := pool.Run(ctx, 5, func(_ context.Context, _ int) (Outcome, error) {
		atomic.AddInt64(&started, 1)
		once.Do(cancel)
		time.Sleep(time.Millisecond)
		return Success, nil
	})

	if summary.Total != 5 {
		t.Fatalf("Total = %d, want 5", summary.Total)
	}
	if summary.SuccessCount+summary.FailCount != 5 {
		t.Errorf("counts do not cover all tasks: %+v", summary)
	}
	if summary.FailCount == 0 {
		t.Errorf("expected some tasks to fail after cancellation, got %+v", summary)
	}
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		summary Summary
		want    float64
	}{
		{Summary{Total: 0}, 0},
		{Summary{Total: 4, SuccessCount: 4}, 100},
		{Summary{Total: 4, SuccessCount: 1}, 25},
	}
	for _, tt := range tests {
		if got := tt.summary.SuccessRate(); got != tt.want {
			t.Errorf("SuccessRate(%+v) = %v, want %v", tt.summary, got, tt.want)
		}
	}
}
