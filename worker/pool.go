// Package worker implements the task queue's worker pool (§4.F): a fixed
// number of daemon goroutines that claim the oldest PENDING task, hand it to
// the pipeline runner, and record the terminal outcome, plus a supervisor
// that fails tasks stuck PROCESSING past the configured timeout.
package worker

import (
	"context"
	"time"

	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/metrics"
	"github.com/und3rrr/media-cleaner/notify"
	"github.com/und3rrr/media-cleaner/pipeline"
	"github.com/und3rrr/media-cleaner/store"
)

// Runner is the subset of pipeline.Runner the pool depends on, so tests can
// substitute a fake without building a real toolchain/perturb engine.
type Runner interface {
	Run(ctx context.Context, taskID string) error
}

// Pool runs N daemon goroutines draining the store's PENDING queue.
type Pool struct {
	Store        *store.Store
	Runner       Runner
	Notifier     *notify.Notifier
	Workers      int
	PollInterval time.Duration
}

// NewPool builds a pool with the given concurrency, defaulting Workers and
// PollInterval to the package-wide defaults when unset.
func NewPool(s *store.Store, r Runner, workers int) *Pool {
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	return &Pool{Store: s, Runner: r, Notifier: notify.NewNotifier(), Workers: workers, PollInterval: config.WorkerPollInterval}
}

// Start launches the worker goroutines and blocks until ctx is done.
func (p *Pool) Start(ctx context.Context) {
	done := make(chan struct{}, p.Workers)
	for i := 0; i < p.Workers; i++ {
		go func(id int) {
			p.runWorker(ctx, id)
			done <- struct{}{}
		}(i)
	}
	<-ctx.Done()
	for i := 0; i < p.Workers; i++ {
		<-done
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	poll := p.PollInterval
	if poll <= 0 {
		poll = config.WorkerPollInterval
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok := p.Store.ClaimNext()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(poll):
			}
			continue
		}

		log.AddContext(task.ID, "kind", string(task.Kind), "user_id", task.UserID)
		p.runTask(ctx, task)
	}
}

// runTask executes one claimed task and records its terminal status.
// Any error surfacing from the runner other than cancellation is treated as
// a catch-all failure (§4.F): the task is marked FAILED rather than left
// PROCESSING forever.
func (p *Pool) runTask(ctx context.Context, task *store.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.LogError(task.ID, "worker panic running task", errFromRecover(r))
			p.fail(task.ID, "internal error")
		}
	}()

	err := p.Runner.Run(ctx, task.ID)
	switch {
	case err == nil:
		p.complete(task.ID)
	case pipeline.IsCancelled(err):
		// Cancel already set the terminal status; nothing further to record.
	default:
		log.LogError(task.ID, "task failed", err)
		p.fail(task.ID, err.Error())
	}
}

func (p *Pool) complete(taskID string) {
	now := config.Clock.GetTime()
	task, err := p.Store.Update(taskID, func(t *store.Task) {
		t.Status = store.StatusCompleted
		t.CompletedAt = &now
		t.Progress = 100
	})
	metrics.Metrics.Queue.TasksInFlight.Dec()
	if err == nil {
		metrics.Metrics.Queue.TasksCompleted.WithLabelValues(string(task.Kind)).Inc()
		if p.Notifier != nil {
			p.Notifier.NotifyCompletion(task)
		}
	}
}

func (p *Pool) fail(taskID, message string) {
	now := config.Clock.GetTime()
	task, err := p.Store.Update(taskID, func(t *store.Task) {
		t.Status = store.StatusFailed
		t.CompletedAt = &now
		t.ErrorMessage = message
	})
	metrics.Metrics.Queue.TasksInFlight.Dec()
	if err == nil {
		metrics.Metrics.Queue.TasksFailed.WithLabelValues(string(task.Kind)).Inc()
		if p.Notifier != nil {
			p.Notifier.NotifyCompletion(task)
		}
	}
}

type recoverError struct{ v interface{} }

func (e recoverError) Error() string { return "panic: " + errString(e.v) }

func errFromRecover(v interface{}) error { return recoverError{v} }

func errString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic value"
}
