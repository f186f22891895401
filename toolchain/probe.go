package toolchain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Probe runs ffprobe against a local file with a short exponential backoff
// retry, same shape as the transcoding pipeline's encoder probe: transient
// probe failures (file not yet flushed to disk, toolchain busy) are worth a
// couple of retries before giving up.
func (f *FFmpeg) Probe(ctx context.Context, input string) (ProbeResult, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		d, err := ffprobe.ProbeURL(probeCtx, input)
		if err != nil {
			return err
		}
		data = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, 3)); err != nil {
		return ProbeResult{}, fmt.Errorf("probing %s: %w", input, err)
	}

	return parseProbeResult(data)
}

func parseProbeResult(data *ffprobe.ProbeData) (ProbeResult, error) {
	videoStream := data.FirstVideoStream()
	if videoStream == nil {
		return ProbeResult{}, fmt.Errorf("no video stream found")
	}

	fps, err := parseFps(videoStream.AvgFrameRate)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("parsing average fps: %w", err)
	}
	if fps == 0 {
		fps, err = parseFps(videoStream.RFrameRate)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("parsing real fps: %w", err)
		}
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil && data.Format != nil {
		duration = data.Format.DurationSeconds
	}

	frameCount, _ := strconv.Atoi(videoStream.NbFrames)
	if frameCount == 0 && fps > 0 {
		frameCount = int(fps * duration)
	}

	return ProbeResult{
		FPS:        fps,
		FrameCount: frameCount,
		Width:      videoStream.Width,
		Height:     videoStream.Height,
		Duration:   duration,
		HasAudio:   data.FirstAudioStream() != nil,
	}, nil
}

// parseFps handles the "num/den" rational framerate strings ffprobe emits.
func parseFps(framerate string) (float64, error) {
	if framerate == "" {
		return 0, nil
	}
	parts := strings.SplitN(framerate, "/", 2)
	if len(parts) < 2 {
		return strconv.ParseFloat(framerate, 64)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parsing framerate numerator: %w", err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("parsing framerate denominator: %w", err)
	}
	if den == 0 {
		if num == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("invalid framerate denominator 0")
	}
	return float64(num) / float64(den), nil
}
