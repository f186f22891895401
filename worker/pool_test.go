package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/und3rrr/media-cleaner/pipeline"
	"github.com/und3rrr/media-cleaner/store"
)

type fakeRunner struct {
	run func(ctx context.Context, taskID string) error
}

func (f *fakeRunner) Run(ctx context.Context, taskID string) error {
	return f.run(ctx, taskID)
}

func TestPoolCompletesSuccessfulTask(t *testing.T) {
	s := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	task, err := s.Create(&store.Task{Kind: store.KindStripMetadata})
	require.NoError(t, err)

	runner := &fakeRunner{run: func(ctx context.Context, taskID string) error { return nil }}
	p := NewPool(s, runner, 2)
	p.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go p.Start(ctx)

	require.Eventually(t, func() bool {
		got, ok := s.Get(task.ID)
		return ok && got.Status == store.StatusCompleted
	}, 400*time.Millisecond, 10*time.Millisecond)
}

func TestPoolFailsTaskOnRunnerError(t *testing.T) {
	s := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	task, err := s.Create(&store.Task{Kind: store.KindCompress})
	require.NoError(t, err)

	runner := &fakeRunner{run: func(ctx context.Context, taskID string) error {
		return errors.New("toolchain exploded")
	}}
	p := NewPool(s, runner, 1)
	p.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go p.Start(ctx)

	require.Eventually(t, func() bool {
		got, ok := s.Get(task.ID)
		return ok && got.Status == store.StatusFailed
	}, 400*time.Millisecond, 10*time.Millisecond)

	got, _ := s.Get(task.ID)
	require.Equal(t, "toolchain exploded", got.ErrorMessage)
}

func TestPoolLeavesCancelledTaskAlone(t *testing.T) {
	s := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	task, err := s.Create(&store.Task{Kind: store.KindCompress})
	require.NoError(t, err)

	runner := &fakeRunner{run: func(ctx context.Context, taskID string) error {
		_, cancelErr := s.Cancel(taskID)
		require.NoError(t, cancelErr)
		return pipeline.ErrCancelled
	}}
	p := NewPool(s, runner, 1)
	p.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go p.Start(ctx)

	require.Eventually(t, func() bool {
		got, ok := s.Get(task.ID)
		return ok && got.Status == store.StatusCancelled
	}, 400*time.Millisecond, 10*time.Millisecond)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	s := store.New(filepath.Join(t.TempDir(), "tasks.json"))
	task, err := s.Create(&store.Task{Kind: store.KindCompress})
	require.NoError(t, err)

	runner := &fakeRunner{run: func(ctx context.Context, taskID string) error {
		panic("boom")
	}}
	p := NewPool(s, runner, 1)
	p.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go p.Start(ctx)

	require.Eventually(t, func() bool {
		got, ok := s.Get(task.ID)
		return ok && got.Status == store.StatusFailed
	}, 400*time.Millisecond, 10*time.Millisecond)
}
