package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job names used in logs and pipeline responses.
const (
	JobRecurring      = "recurring-transactions"
	JobBudgetAlerts   = "budget-alerts"
	JobMonthlyReports = "monthly-reports"
)

// RunResult summarizes one batch job step.
type RunResult struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Checked   int           `json:"checked"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`

	mu    sync.Mutex
	begun time.Time
}

func newRunResult(job string, now time.Time) *RunResult {
	return &RunResult{Job: job, StartedAt: now, begun: time.Now()}
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (r *RunResult) record(o outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch o {
	case outcomeProcessed:
		r.Processed++
	case outcomeSkipped:
		r.Skipped++
	case outcomeFailed:
		r.Failed++
	}
}

func (r *RunResult) finish() *RunResult {
	r.Duration = time.Since(r.begun)
	return r
}

// forEachLimited runs fn over items with at most limit in flight. Items are
// independent: fn reports its own outcome and never stops the others.
// Scheduling stops early when ctx is done.
func forEachLimited[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T)) error {
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			fn(ctx, item)
			return nil
		})
	}
	return g.Wait()
}
