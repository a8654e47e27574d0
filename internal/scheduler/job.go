// internal/scheduler/job.go
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one periodic unit of work.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run.
	Timeout time.Duration
	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Job runs a Task on a ticker. Runs never overlap: a tick or trigger that
// arrives during a run is served after it.
type Job struct {
	task   Task
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	forceCh chan struct{}
	wg      sync.WaitGroup

	lastMu  sync.RWMutex
	lastRun time.Time
	lastErr error
	runs    int
}

// NewJob creates a stopped job.
func NewJob(task Task, logger *zap.Logger) *Job {
	if task.Interval <= 0 {
		task.Interval = time.Minute
	}
	if task.Timeout <= 0 {
		task.Timeout = task.Interval
	}
	return &Job{
		task:   task,
		logger: logger.Named("job").With(zap.String("job", task.Name)),
	}
}

// Start launches the loop and returns immediately. Repeated calls are no-ops.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	if j.task.Run == nil {
		return errors.New("scheduler: task has no run function")
	}
	j.stopCh = make(chan struct{})
	j.forceCh = make(chan struct{}, 1)
	j.running = true
	j.wg.Add(1)
	go j.loop(ctx)
	return nil
}

// Stop signals the loop to exit and waits for the current run to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopCh)
	j.running = false
	j.mu.Unlock()
	j.wg.Wait()
}

// Trigger requests an immediate run. It never blocks; a trigger while one is
// already pending is dropped and reported as false.
func (j *Job) Trigger() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return false
	}
	select {
	case j.forceCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunInfo describes the latest run of a job.
type RunInfo struct {
	At    time.Time
	Err   error
	Count int
}

// Last returns the latest run.
func (j *Job) Last() RunInfo {
	j.lastMu.RLock()
	defer j.lastMu.RUnlock()
	return RunInfo{At: j.lastRun, Err: j.lastErr, Count: j.runs}
}

func (j *Job) loop(parent context.Context) {
	defer j.wg.Done()

	if j.task.RunOnStart {
		j.runOnce(parent)
	}

	t := time.NewTicker(j.task.Interval)
	defer t.Stop()

	for {
		select {
		case <-parent.Done():
			j.logger.Info("context canceled; stopping")
			return
		case <-j.stopCh:
			j.logger.Info("stop requested; stopping")
			return
		case <-t.C:
			j.runOnce(parent)
		case <-j.forceCh:
			j.runOnce(parent)
		}
	}
}

func (j *Job) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, j.task.Timeout)
	defer cancel()

	start := time.Now()
	err := j.task.Run(ctx)

	j.lastMu.Lock()
	j.lastRun, j.lastErr = start, err
	j.runs++
	j.lastMu.Unlock()

	if err != nil {
		j.logger.Warn("run failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	j.logger.Debug("run finished", zap.Duration("duration", time.Since(start)))
}
