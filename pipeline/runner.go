// Package pipeline implements the task runner (§4.D): the sequence of
// toolchain/perturbation/masking steps a worker drives a single task
// through, from admission probe to final cleanup, reporting progress and
// honouring cancellation at each checkpoint.
package pipeline

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/und3rrr/media-cleaner/audiomask"
	"github.com/und3rrr/media-cleaner/config"
	apierrors "github.com/und3rrr/media-cleaner/errors"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/perturb"
	"github.com/und3rrr/media-cleaner/progress"
	"github.com/und3rrr/media-cleaner/store"
	"github.com/und3rrr/media-cleaner/toolchain"
)

// cancelledErr is returned internally to short-circuit a run once a
// cancellation checkpoint observes the task has moved to CANCELLED; the
// caller (worker) treats it as "no further action", not a failure.
type cancelledErr struct{}

func (cancelledErr) Error() string { return "task cancelled" }

// ErrCancelled is the sentinel a Runner.Run returns once a checkpoint
// observes the task has moved to CANCELLED.
var ErrCancelled error = cancelledErr{}

// IsCancelled reports whether err is the pipeline's internal cancellation
// signal.
func IsCancelled(err error) bool {
	_, ok := err.(cancelledErr)
	return ok
}

// Runner ties the store, toolchain, perturbation engine and audio masker
// together to drive one task to completion.
type Runner struct {
	Store     *store.Store
	Toolchain toolchain.Toolchain
	Engine    *perturb.Engine
	DataDir   string
}

func NewRunner(s *store.Store, tc toolchain.Toolchain, dataDir string) *Runner {
	return &Runner{Store: s, Toolchain: tc, Engine: perturb.NewEngine(), DataDir: dataDir}
}

func (r *Runner) inputPath(t *store.Task) string {
	return filepath.Join(r.DataDir, config.DirVideosInput, t.InputName)
}

func (r *Runner) outputPath(t *store.Task, suffix string) string {
	return filepath.Join(r.DataDir, config.DirVideosOutput, fmt.Sprintf("%s_%s_%s.mp4", t.ID, baseName(t.InputName), suffix))
}

func (r *Runner) framesDir(t *store.Task) string {
	return filepath.Join(r.DataDir, config.DirVideosTemp, fmt.Sprintf("%s_%s_frames", t.ID, baseName(t.InputName)))
}

func (r *Runner) audioPath(t *store.Task, suffix string) string {
	return filepath.Join(r.DataDir, config.DirVideosTemp, fmt.Sprintf("%s_%s_audio_%s.wav", t.ID, baseName(t.InputName), suffix))
}

func baseName(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

// checkCancelled re-reads the task's live status; a worker-level
// cancellation request between checkpoints must stop the run without
// treating it as a failure (§4.D cancellation checkpoints).
func (r *Runner) checkCancelled(taskID string) error {
	t, ok := r.Store.Get(taskID)
	if !ok || t.Status == store.StatusCancelled {
		return ErrCancelled
	}
	return nil
}

// Run dispatches a claimed, PROCESSING task to its kind-specific steps.
func (r *Runner) Run(ctx context.Context, taskID string) error {
	t, ok := r.Store.Get(taskID)
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}

	reporter := progress.NewReporter(ctx, taskID, func(p float64) {
		r.Store.Update(taskID, func(t *store.Task) { t.Progress = p * 100 })
	})
	defer reporter.Stop()

	switch t.Kind {
	case store.KindProtect:
		return r.runProtect(ctx, t, reporter)
	case store.KindStripMetadata:
		return r.runStripMetadata(ctx, t, reporter)
	case store.KindCompress:
		return r.runCompress(ctx, t, reporter)
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}

// runProtect implements the PROTECT phase table (§4.D): admission+probe
// (->10), frame pass (->50), audio extract+mask (->75), mux (->95),
// cleanup (->100). Metadata is dropped by the mux itself (-map_metadata -1);
// no separate StripMetadata pass runs on the output, and the input file is
// left in place.
func (r *Runner) runProtect(ctx context.Context, t *store.Task, reporter *progress.Reporter) error {
	input := r.inputPath(t)
	probeResult, err := r.Toolchain.Probe(ctx, input)
	if err != nil {
		return err
	}
	reporter.Set(0.10)

	if err := r.checkCancelled(t.ID); err != nil {
		return err
	}

	framesDir := r.framesDir(t)
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return apierrors.ErrFrameIO
	}
	if err := r.Toolchain.ExtractFrames(ctx, input, filepath.Join(framesDir, "frame_%06d.png"), probeResult.FPS); err != nil {
		return err
	}

	frames, err := listFrameFiles(framesDir)
	if err != nil {
		return apierrors.ErrFrameIO
	}

	everyN := t.Protect.EveryN
	if everyN < 1 {
		everyN = 1
	}
	// total_frames/processed_frames report the work actually done, not the
	// raw frame count: only every_n-th frame is perturbed, so the task's
	// observational counters track that subset (§3, §8 S1: 150 frames at
	// every_n=10 reports total_frames=15).
	totalWork := (len(frames) + everyN - 1) / everyN
	r.Store.Update(t.ID, func(t *store.Task) { t.TotalFrames = totalWork })

	perturbed := 0
	reporter.Track(func() float64 { return float64(perturbed) / float64(totalWork) }, 0.50)
	for i, framePath := range frames {
		if i%everyN == 0 {
			if err := r.perturbFrame(framePath, t.Protect.Epsilon, t.Protect.Strength, int64(t.ID[0])+int64(i)); err != nil {
				return err
			}
			perturbed++
			r.Store.Update(t.ID, func(t *store.Task) { t.ProcessedFrames = perturbed })
		}
		if err := r.checkCancelled(t.ID); err != nil {
			return err
		}
	}
	reporter.Set(0.50)

	audioOrig := r.audioPath(t, "orig")
	audioMasked := r.audioPath(t, "adv")
	hasAudio := probeResult.HasAudio
	if hasAudio {
		if err := r.Toolchain.ExtractAudio(ctx, input, audioOrig); err != nil {
			return err
		}
		if err := r.checkCancelled(t.ID); err != nil {
			return err
		}

		samples, sampleRate, err := readWAV(audioOrig)
		if err != nil {
			return apierrors.ErrAudioIO
		}
		if len(samples) == 0 {
			return apierrors.ErrAudioEmpty
		}

		// audio_level "none" (§9 Open Question 2) means the audio track
		// passes through unmasked; skip straight to muxing the extracted
		// original rather than calling into audiomask, which only knows
		// about the three levels that actually apply noise.
		if t.Protect.AudioLevel != store.AudioLevelNone {
			masked, err := audiomask.Mask(samples, sampleRate, t.Protect.AudioLevel)
			if err != nil {
				return fmt.Errorf("masking audio: %w", err)
			}
			if err := writeWAV(audioMasked, masked, sampleRate); err != nil {
				return apierrors.ErrAudioIO
			}
		}
		if err := r.checkCancelled(t.ID); err != nil {
			return err
		}
	}
	reporter.Set(0.75)

	if err := r.checkCancelled(t.ID); err != nil {
		return err
	}

	encoder, err := r.Toolchain.ProbeEncoders(ctx)
	if err != nil {
		return err
	}
	output := r.outputPath(t, "protected")
	muxAudio := audioOrig
	if hasAudio && t.Protect.AudioLevel != store.AudioLevelNone {
		muxAudio = audioMasked
	}
	if err := r.Toolchain.Mux(ctx, toolchain.MuxParams{
		FramesDirPattern: filepath.Join(framesDir, "frame_%06d.png"),
		AudioPath:        muxAudio,
		FPS:              probeResult.FPS,
		Output:           output,
		Encoder:          encoder,
	}); err != nil {
		return err
	}
	reporter.Set(0.95)

	// Late-cancellation checkpoint (§9 Open Question 3): a cancel landing
	// after the mux has already produced output must not leave a protected
	// file behind for a task the caller believes never ran.
	if err := r.checkCancelled(t.ID); err != nil {
		if removeErr := os.Remove(output); removeErr != nil && !os.IsNotExist(removeErr) {
			log.LogError(t.ID, "failed to unlink output after late cancellation", removeErr)
		}
		return err
	}

	os.RemoveAll(framesDir)
	os.Remove(audioOrig)
	os.Remove(audioMasked)

	size, err := fileSizeMB(output)
	if err != nil {
		return err
	}
	r.Store.Update(t.ID, func(t *store.Task) {
		t.OutputName = filepath.Base(output)
		t.OutputSizeMB = size
	})
	reporter.Set(1.0)
	return nil
}

func (r *Runner) perturbFrame(framePath string, epsilon, strength float64, seed int64) error {
	f, err := os.Open(framePath)
	if err != nil {
		return apierrors.ErrFrameIO
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return apierrors.ErrFrameIO
	}

	res := r.Engine.Perturb(img, epsilon, strength, seed)
	if res.Skipped {
		return nil
	}

	out, err := os.Create(framePath)
	if err != nil {
		return apierrors.ErrFrameIO
	}
	defer out.Close()
	if err := png.Encode(out, res.Image); err != nil {
		return apierrors.ErrFrameIO
	}
	return nil
}

func listFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func readWAV(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return audiomask.ReadMonoPCM16(f)
}

func writeWAV(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return audiomask.WriteMonoPCM16(f, samples, sampleRate)
}

func fileSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / (1024 * 1024), nil
}
