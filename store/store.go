// Package store implements the durable task queue described by the task
// record in §3: an in-memory map guarded by a single exclusive lock,
// persisted to a single pretty-printed JSON document on every mutation.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/metrics"
)

// Store is the shared task map: every mutation and every read-then-write
// holds mu; reads that tolerate a stale snapshot (List*, Get) copy under the
// lock and release it immediately.
type Store struct {
	mu    sync.Mutex
	path  string
	tasks map[string]*Task
}

// New builds an empty, unpersisted store. Use Load to populate it from disk.
func New(dbPath string) *Store {
	return &Store{
		path:  dbPath,
		tasks: map[string]*Task{},
	}
}

// Load parses the JSON document at the store's path, if present. Malformed
// records are logged and dropped rather than aborting startup (§4.E).
//
// Resolves Open Question 1 (§9): any record found PROCESSING is requeued to
// PENDING with StartedAt cleared, so a crash mid-task is recovered by a
// worker simply claiming it again rather than left orphaned.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading task db: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing task db: %w", err)
	}

	tasks := map[string]*Task{}
	for id, msg := range raw {
		var t Task
		if err := json.Unmarshal(msg, &t); err != nil {
			log.LogNoRequestID("dropping malformed task record on load", "id", id, "err", err)
			continue
		}
		if t.Status == StatusProcessing {
			t.Status = StatusPending
			t.StartedAt = nil
			log.Log(t.ID, "requeuing task left PROCESSING across a restart")
		}
		tasks[id] = &t
	}
	s.tasks = tasks
	return nil
}

// persist rewrites the whole document. Must be called with mu held.
func (s *Store) persist() error {
	b, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling task db: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating task db directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing task db: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Create inserts a new PENDING task, assigning it an 8-hex-char id (§3).
func (s *Store) Create(t *Task) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = newTaskID()
	t.Status = StatusPending
	t.CreatedAt = config.Clock.GetTime()
	s.tasks[t.ID] = t

	if err := s.persist(); err != nil {
		delete(s.tasks, t.ID)
		return nil, err
	}
	metrics.Metrics.Queue.TasksCreated.WithLabelValues(string(t.Kind)).Inc()
	metrics.Metrics.Queue.TasksPending.Inc()
	return t.Clone(), nil
}

func newTaskID() string {
	return uuid.New().String()[:8]
}

// Get returns a snapshot copy of the task, or false if unknown.
func (s *Store) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Update applies fn to the live record under the lock and persists the
// result. fn must not retain the pointer beyond its own execution.
func (s *Store) Update(id string, fn func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	fn(t)
	if err := s.persist(); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// ClaimNext atomically selects the oldest PENDING task and transitions it to
// PROCESSING, or returns (nil, false) if the queue is empty. Race-free: the
// whole claim happens under the store's single lock, so two workers can
// never claim the same task (§4.F, §5).
func (s *Store) ClaimNext() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Task
	for _, t := range s.tasks {
		if t.Status != StatusPending {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, false
	}

	now := config.Clock.GetTime()
	oldest.Status = StatusProcessing
	oldest.StartedAt = &now
	if err := s.persist(); err != nil {
		log.LogError(oldest.ID, "failed to persist claim, leaving task claimed in memory only", err)
	}
	metrics.Metrics.Queue.TasksPending.Dec()
	metrics.Metrics.Queue.TasksInFlight.Inc()
	return oldest.Clone(), true
}

// Cancel transitions a task to CANCELLED iff it is currently PENDING or
// PROCESSING (§4.E, §5). Returns false if the task is unknown or already
// terminal.
func (s *Store) Cancel(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, nil
	}
	if t.Status.IsTerminal() {
		return false, nil
	}
	wasProcessing := t.Status == StatusProcessing
	t.Status = StatusCancelled
	now := config.Clock.GetTime()
	t.CompletedAt = &now
	if err := s.persist(); err != nil {
		return false, err
	}
	if wasProcessing {
		metrics.Metrics.Queue.TasksInFlight.Dec()
	} else {
		metrics.Metrics.Queue.TasksPending.Dec()
	}
	metrics.Metrics.Queue.TasksCancelled.Inc()
	return true, nil
}

// ListPending returns up to limit PENDING tasks, oldest first. limit <= 0
// means unbounded.
func (s *Store) ListPending(limit int) []*Task {
	return s.listFiltered(func(t *Task) bool { return t.Status == StatusPending }, limit)
}

// ListByUser returns all tasks owned by uid, newest first.
func (s *Store) ListByUser(uid string) []*Task {
	return s.listFiltered(func(t *Task) bool { return t.UserID == uid }, 0)
}

// ListAll returns every task, optionally filtered by status, newest first.
func (s *Store) ListAll(status *Status) []*Task {
	return s.listFiltered(func(t *Task) bool {
		return status == nil || t.Status == *status
	}, 0)
}

func (s *Store) listFiltered(keep func(*Task) bool, limit int) []*Task {
	s.mu.Lock()
	var out []*Task
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Cleanup removes terminal tasks whose CompletedAt is older than the given
// number of days. It does not touch any file on disk: the pipeline owns
// files, the store only owns records (§4.E).
func (s *Store) Cleanup(days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := config.Clock.GetTime().AddDate(0, 0, -days)
	deleted := 0
	for id, t := range s.tasks {
		if !t.Status.IsTerminal() || t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			deleted++
		}
	}
	if deleted > 0 {
		if err := s.persist(); err != nil {
			return 0, err
		}
	}
	return deleted, nil
}

// Stats returns the current counters for §4.G's /stats endpoint.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, t := range s.tasks {
		st.Total++
		switch t.Status {
		case StatusPending:
			st.Pending++
		case StatusProcessing:
			st.Processing++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		case StatusCancelled:
			st.Cancelled++
		}
	}
	return st
}
