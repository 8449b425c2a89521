package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Outcome classifies the result of one task.
type Outcome int

const (
	Success Outcome = iota
	Empty
	Failed
)

// Summary aggregates task outcomes. Counters are commutative; the completion
// order of tasks does not affect the result. An Empty outcome also counts as
// a failure for the success-rate denominator.
type Summary struct {
	Total        int
	SuccessCount int
	EmptyCount   int
	FailCount    int
}

// SuccessRate returns SuccessCount / Total as a percentage.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.Total) * 100
}

// Pool runs per-unit tasks under a bounded concurrency gate with per-task
// failure isolation. The same pool drives both the collection pipeline and
// the indicator pipeline.
type Pool struct {
	concurrency int
}

// NewPool creates a pool with the given concurrency ceiling
func NewPool(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{concurrency: concurrency}
}

// Run executes task(ctx, i) for every i in [0, n) with at most the pool's
// concurrency in flight. A panic or error in one task never aborts the
// others; it is logged and counted as a failure. When ctx is cancelled,
// tasks not yet started are counted as failures and skipped.
func (p *Pool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) (Outcome, error)) Summary {
	summary := Summary{Total: n}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	record := func(outcome Outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case Success:
			summary.SuccessCount++
		case Empty:
			summary.EmptyCount++
			summary.FailCount++
		default:
			summary.FailCount++
		}
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			record(Failed)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := safeRun(ctx, i, task)
			if err != nil {
				log.Printf("Task %d failed: %v", i, err)
			}
			record(outcome)
		}(i)
	}

	wg.Wait()
	return summary
}

// safeRun isolates panics so one bad unit cannot take down the batch
func safeRun(ctx context.Context, i int, task func(ctx context.Context, i int) (Outcome, error)) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	outcome, err = task(ctx, i)
	if err != nil {
		outcome = Failed
	}
	return outcome, err
}
