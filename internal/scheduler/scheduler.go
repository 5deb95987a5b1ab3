// Package scheduler drives scheduled prompt execution: a polling loop that
// finds due jobs and a runner that executes each one end to end.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// maxConcurrentRuns bounds how many jobs execute at once per tick. Overlap
// across ticks shares the same gate.
const maxConcurrentRuns = 5

// JobRunner executes one due job end to end.
type JobRunner interface {
	Execute(ctx context.Context, job *store.ScheduledJob) error
}

// Loop polls the job store for due jobs and dispatches them through a
// bounded worker gate. A single Loop instance owns the schedule; every
// per-job failure is logged and absorbed so the loop never dies.
type Loop struct {
	jobs     store.JobStore
	runner   JobRunner
	interval time.Duration
	log      *slog.Logger

	gate    chan struct{}
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLoop(jobs store.JobStore, runner JobRunner, interval time.Duration, log *slog.Logger) *Loop {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		jobs:     jobs,
		runner:   runner,
		interval: interval,
		log:      log,
		gate:     make(chan struct{}, maxConcurrentRuns),
	}
}

// Start begins polling in a background goroutine. The first check runs
// immediately, then every interval.
func (l *Loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.log.Info("scheduler started", "interval", l.interval)

	l.wg.Add(1)
	go l.run(ctx)
	return nil
}

// Stop cancels the loop and waits for in-flight runs to finish.
func (l *Loop) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.log.Info("scheduler stopping")
	l.cancel()
	l.wg.Wait()
	l.log.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs every due job through the worker gate and waits for the whole
// batch before returning. A job stays due until UpdateExecution advances it,
// so dispatching without waiting would re-run a still-in-flight job on the
// next poll; waiting keeps one fire from ever overlapping itself in-process.
func (l *Loop) tick(ctx context.Context) {
	now := time.Now().Unix()

	due, err := l.jobs.Due(ctx, now)
	if err != nil {
		l.log.Error("due job query failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	l.log.Info("due jobs found", "count", len(due))

	var batch sync.WaitGroup
	for _, job := range due {
		batch.Add(1)
		go func(job *store.ScheduledJob) {
			defer batch.Done()

			select {
			case l.gate <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-l.gate }()

			if err := l.runner.Execute(ctx, job); err != nil {
				l.log.Error("scheduled prompt failed",
					"job_id", job.ID, "name", job.Name, "error", err)
			}
		}(job)
	}
	batch.Wait()
}
