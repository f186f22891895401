package pipeline

import (
	"context"
	"os"
	"path/filepath"

	apierrors "github.com/und3rrr/media-cleaner/errors"
	"github.com/und3rrr/media-cleaner/progress"
	"github.com/und3rrr/media-cleaner/store"
	"github.com/und3rrr/media-cleaner/toolchain"
)

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		_ = err
	}
}

// evenDown rounds a probed dimension down to the nearest even value, since
// yuv420p chroma subsampling requires both width and height to be even
// (§4.D).
func evenDown(v int) int {
	return v - v%2
}

// runStripMetadata and runCompress share the no-frame-pass, no-audio-mask
// phase shape described in §4.D: admission+probe (->20), the single
// toolchain action (->90), cleanup (->100).

func (r *Runner) runStripMetadata(ctx context.Context, t *store.Task, reporter *progress.Reporter) error {
	input := r.inputPath(t)
	if _, err := r.Toolchain.Probe(ctx, input); err != nil {
		return err
	}
	reporter.Set(0.20)

	if err := r.checkCancelled(t.ID); err != nil {
		return err
	}

	output := r.outputPath(t, "cleaned")
	if err := r.Toolchain.StripMetadata(ctx, input, output); err != nil {
		return err
	}
	reporter.Set(0.90)

	if err := r.checkCancelled(t.ID); err != nil {
		removeIfExists(output)
		return err
	}

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

func (r *Runner) runCompress(ctx context.Context, t *store.Task, reporter *progress.Reporter) error {
	input := r.inputPath(t)
	probeResult, err := r.Toolchain.Probe(ctx, input)
	if err != nil {
		return err
	}
	reporter.Set(0.20)

	if err := r.checkCancelled(t.ID); err != nil {
		return err
	}

	inputSize, err := fileSizeMB(input)
	if err != nil {
		return apierrors.ErrFrameIO
	}
	ratio := t.Compress.TargetMB / inputSize
	crf := toolchain.CRFForRatio(ratio)
	width, height := evenDown(probeResult.Width), evenDown(probeResult.Height)

	output := r.outputPath(t, "compressed")
	if err := r.Toolchain.Compress(ctx, input, output, crf, width, height); err != nil {
		return err
	}
	reporter.Set(0.90)

	if err := r.checkCancelled(t.ID); err != nil {
		removeIfExists(output)
		return err
	}

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
