// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
)

// Passes are the orchestrator entry points the scheduler drives.
type Passes interface {
	RunBatch(ctx context.Context) (*orchestrator.Summary, error)
	MatchPass(ctx context.Context) (*orchestrator.MatchSummary, error)
	RefreshPrice(ctx context.Context) (*executor.Result, error)
}

// Config sets the job intervals. A zero match or price interval disables
// that job.
type Config struct {
	BatchInterval time.Duration
	MatchInterval time.Duration
	PriceInterval time.Duration
	// Budget is the batch's window for starting work; Grace is added on top
	// so in-flight transitions can confirm.
	Budget     time.Duration
	Grace      time.Duration
	RunOnStart bool
}

// Scheduler owns the periodic keeper jobs. Every tick is an independent
// invocation; only the last batch summary is kept, for display.
type Scheduler struct {
	batch  *Job
	match  *Job
	price  *Job
	last   atomic.Pointer[orchestrator.Summary]
	logger *zap.Logger
}

// New creates the jobs for cfg.
func New(passes Passes, cfg Config, logger *zap.Logger) *Scheduler {
	logger = logger.Named("scheduler")
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	s := &Scheduler{logger: logger}

	s.batch = NewJob(Task{
		Name:       "batch",
		Interval:   cfg.BatchInterval,
		Timeout:    cfg.Budget + cfg.Grace,
		RunOnStart: cfg.RunOnStart,
		Run: func(ctx context.Context) error {
			summary, err := passes.RunBatch(ctx)
			if summary != nil {
				s.last.Store(summary)
			}
			return err
		},
	}, logger)

	if cfg.MatchInterval > 0 {
		s.match = NewJob(Task{
			Name:     "match",
			Interval: cfg.MatchInterval,
			Timeout:  cfg.Budget + cfg.Grace,
			Run: func(ctx context.Context) error {
				_, err := passes.MatchPass(ctx)
				return err
			},
		}, logger)
	}
	if cfg.PriceInterval > 0 {
		s.price = NewJob(Task{
			Name:       "price",
			Interval:   cfg.PriceInterval,
			Timeout:    cfg.Grace + time.Minute,
			RunOnStart: cfg.RunOnStart,
			Run: func(ctx context.Context) error {
				_, err := passes.RefreshPrice(ctx)
				if errors.Is(err, executor.ErrPriceUpdateTooSoon) {
					return nil
				}
				return err
			},
		}, logger)
	}
	return s
}

func (s *Scheduler) jobs() []*Job {
	out := []*Job{s.batch}
	for _, j := range []*Job{s.match, s.price} {
		if j != nil {
			out = append(out, j)
		}
	}
	return out
}

// Start starts every configured job.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs() {
		if err := j.Start(ctx); err != nil {
			s.Stop()
			return err
		}
	}
	s.logger.Info("⏰ Scheduler started", zap.Int("jobs", len(s.jobs())))
	return nil
}

// Stop stops every job and waits for in-flight runs.
func (s *Scheduler) Stop() {
	for _, j := range s.jobs() {
		j.Stop()
	}
}

// Trigger requests an immediate batch pass.
func (s *Scheduler) Trigger() bool {
	return s.batch.Trigger()
}

// LastSummary returns the summary of the latest batch pass, if any.
func (s *Scheduler) LastSummary() *orchestrator.Summary {
	return s.last.Load()
}
