package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/und3rrr/media-cleaner/audiomask"
	"github.com/und3rrr/media-cleaner/perturb"
	"github.com/und3rrr/media-cleaner/store"
	"github.com/und3rrr/media-cleaner/toolchain"
)

// fakeToolchain wraps a Recorder but actually produces the files downstream
// pipeline code expects to find, so the runner can be exercised end to end
// without an ffmpeg binary on PATH.
type fakeToolchain struct {
	*toolchain.Recorder
	frameCount int
	frameSize  int
}

func (f *fakeToolchain) ExtractFrames(ctx context.Context, input, pattern string, fps float64) error {
	if err := f.Recorder.ExtractFrames(ctx, input, pattern, fps); err != nil {
		return err
	}
	dir := filepath.Dir(pattern)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	size := f.frameSize
	if size == 0 {
		size = 64
	}
	for i := 1; i <= f.frameCount; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", i))
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
			}
		}
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		err = png.Encode(out, img)
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeToolchain) ExtractAudio(ctx context.Context, input, outWAV string) error {
	if err := f.Recorder.ExtractAudio(ctx, input, outWAV); err != nil {
		return err
	}
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	out, err := os.Create(outWAV)
	if err != nil {
		return err
	}
	defer out.Close()
	return audiomask.WriteMonoPCM16(out, samples, 16000)
}

func (f *fakeToolchain) Mux(ctx context.Context, p toolchain.MuxParams) error {
	if err := f.Recorder.Mux(ctx, p); err != nil {
		return err
	}
	return os.WriteFile(p.Output, []byte("fake-mp4-bytes-for-test"), 0o644)
}

func newTestRunner(t *testing.T, ft *fakeToolchain) (*Runner, *store.Store, *store.Task) {
	t.Helper()
	dataDir := t.TempDir()
	for _, dir := range []string{"videos_input", "videos_output", "videos_temp"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dataDir, dir), 0o755))
	}

	s := store.New(filepath.Join(dataDir, "queue_db", "tasks.json"))
	task, err := s.Create(&store.Task{
		Kind:      store.KindProtect,
		InputName: "a1b2c3d4_clip.mp4",
		UserID:    "alice",
		Protect: &store.ProtectParams{
			Epsilon:    0.12,
			Strength:   1.0,
			EveryN:     2,
			AudioLevel: store.AudioLevelWeak,
		},
	})
	require.NoError(t, err)
	_, claimed := s.ClaimNext()
	require.True(t, claimed)

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "videos_input", "a1b2c3d4_clip.mp4"), []byte("fake-source"), 0o644))

	r := &Runner{Store: s, Toolchain: ft, DataDir: dataDir}
	r.Engine = perturb.NewEngine()
	return r, s, task
}

func TestRunProtectCompletesAndSetsOutput(t *testing.T) {
	ft := &fakeToolchain{
		Recorder: &toolchain.Recorder{
			ProbeResult:   toolchain.ProbeResult{FPS: 10, FrameCount: 4, HasAudio: true, Width: 64, Height: 64},
			EncoderResult: toolchain.EncoderH264CPU,
		},
		frameCount: 4,
	}
	r, s, task := newTestRunner(t, ft)

	err := r.Run(context.Background(), task.ID)
	require.NoError(t, err)

	got, ok := s.Get(task.ID)
	require.True(t, ok)
	require.NotEmpty(t, got.OutputName)
	require.Greater(t, got.OutputSizeMB, 0.0)
	// 4 extracted frames at every_n=2 perturbs frames 0 and 2: total_frames
	// and processed_frames report that work count, not the raw frame count.
	require.Equal(t, 2, got.TotalFrames)
	require.Equal(t, 2, got.ProcessedFrames)
}

func TestRunProtectStopsAtCancellationCheckpoint(t *testing.T) {
	ft := &fakeToolchain{
		Recorder: &toolchain.Recorder{
			ProbeResult:   toolchain.ProbeResult{FPS: 10, FrameCount: 4, HasAudio: false, Width: 64, Height: 64},
			EncoderResult: toolchain.EncoderH264CPU,
		},
		frameCount: 4,
	}
	r, s, task := newTestRunner(t, ft)

	_, err := s.Cancel(task.ID)
	require.NoError(t, err)

	err = r.Run(context.Background(), task.ID)
	require.Error(t, err)
	require.True(t, IsCancelled(err))
}

func TestRunStripMetadataCompletes(t *testing.T) {
	ft := &fakeToolchain{
		Recorder: &toolchain.Recorder{
			ProbeResult: toolchain.ProbeResult{FPS: 10, FrameCount: 4, Width: 64, Height: 64},
		},
	}
	dataDir := t.TempDir()
	for _, dir := range []string{"videos_input", "videos_output", "videos_temp"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dataDir, dir), 0o755))
	}
	s := store.New(filepath.Join(dataDir, "queue_db", "tasks.json"))
	task, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "a1b2c3d4_clip.mp4", UserID: "alice"})
	require.NoError(t, err)
	_, claimed := s.ClaimNext()
	require.True(t, claimed)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "videos_input", "a1b2c3d4_clip.mp4"), []byte("fake-source"), 0o644))

	ft2 := &stripFakeToolchain{Recorder: ft.Recorder}
	r := &Runner{Store: s, Toolchain: ft2, DataDir: dataDir}
	r.Engine = perturb.NewEngine()

	require.NoError(t, r.Run(context.Background(), task.ID))
	got, ok := s.Get(task.ID)
	require.True(t, ok)
	require.NotEmpty(t, got.OutputName)
}

// stripFakeToolchain produces a real output file for StripMetadata, the only
// action runStripMetadata depends on.
type stripFakeToolchain struct {
	*toolchain.Recorder
}

func (f *stripFakeToolchain) StripMetadata(ctx context.Context, input, output string) error {
	if err := f.Recorder.StripMetadata(ctx, input, output); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("fake-cleaned-bytes"), 0o644)
}
