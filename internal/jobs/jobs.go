// Package jobs runs the batch job steps on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"flow/internal/logger"
	"flow/internal/services"
)

// Step is one batch job step, e.g. RecurringServicer.ProcessDue.
type Step func(ctx context.Context, now time.Time) (*services.RunResult, error)

// Job binds a step to a cron spec.
type Job struct {
	Name string
	Spec string
	Step Step
}

// Scheduler owns the cron runner. Every run gets its own timeout context
// derived from the scheduler's base context.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	clock   func() time.Time

	mu   sync.Mutex
	jobs map[string]Job

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler that evaluates specs in UTC.
func NewScheduler(timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger.Job("cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: timeout,
		clock:   func() time.Time { return time.Now().UTC() },
		jobs:    make(map[string]Job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register schedules job. An empty spec disables the job.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Step == nil {
		return fmt.Errorf("job needs a name and a step")
	}
	if job.Spec == "" {
		logger.Job(job.Name).Infow("Job disabled, no schedule configured")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}

	if _, err := s.cron.AddFunc(job.Spec, func() { _, _ = s.run(s.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = job
	logger.Job(job.Name).Infow("Job scheduled", "spec", job.Spec)
	return nil
}

// RunNow executes a registered job immediately, outside its schedule. It is
// not serialized with scheduled runs, so the step must tolerate overlap.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*services.RunResult, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job %q is not registered", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) (*services.RunResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := logger.Job(job.Name)
	now := s.clock()
	result, err := job.Step(ctx, now)
	if err != nil {
		log.Errorw("Job run failed", "error", err)
	}
	if result != nil {
		log.Infow("Job run complete",
			"checked", result.Checked,
			"processed", result.Processed,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"duration", result.Duration.String(),
		)
	}
	return result, err
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels in-flight runs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
