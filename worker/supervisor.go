package worker

import (
	"context"
	"time"

	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/metrics"
	"github.com/und3rrr/media-cleaner/store"
)

// Supervisor periodically fails any task that has sat PROCESSING longer than
// TimeoutHours, recovering from a worker that died or hung without ever
// reporting a terminal status (§4.F).
type Supervisor struct {
	Store         *store.Store
	TimeoutHours  int
	ScanInterval  time.Duration
}

func NewSupervisor(s *store.Store, timeoutHours int) *Supervisor {
	if timeoutHours <= 0 {
		timeoutHours = config.DefaultTaskTimeoutHours
	}
	return &Supervisor{Store: s, TimeoutHours: timeoutHours, ScanInterval: config.SupervisorScanInterval}
}

// Run blocks, scanning on ScanInterval until ctx is done.
func (sv *Supervisor) Run(ctx context.Context) {
	interval := sv.ScanInterval
	if interval <= 0 {
		interval = config.SupervisorScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sv.scanOnce()
		}
	}
}

func (sv *Supervisor) scanOnce() {
	processing := store.StatusProcessing
	timeout := time.Duration(sv.TimeoutHours) * time.Hour
	now := config.Clock.GetTime()

	for _, t := range sv.Store.ListAll(&processing) {
		if t.StartedAt == nil {
			continue
		}
		if now.Sub(*t.StartedAt) < timeout {
			continue
		}
		log.Log(t.ID, "supervisor timing out task stuck PROCESSING")
		sv.Store.Update(t.ID, func(task *store.Task) {
			task.Status = store.StatusFailed
			completed := now
			task.CompletedAt = &completed
			task.ErrorMessage = "task timed out"
		})
		metrics.Metrics.Queue.TasksInFlight.Dec()
		metrics.Metrics.Queue.TasksFailed.WithLabelValues(string(t.Kind)).Inc()
	}
}
