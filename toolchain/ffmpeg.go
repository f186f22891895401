package toolchain

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/und3rrr/media-cleaner/errors"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/subprocess"
)

// stderrExcerptBytes bounds how much of a failing command's stderr is kept
// for the toolchain failure report (§4.A: "first and last 4 KiB").
const stderrExcerptBytes = 4096

// FFmpeg is the sole real implementor of Toolchain: it shells out to the
// ffmpeg/ffprobe binaries on PATH.
type FFmpeg struct {
	FFmpegPath string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{FFmpegPath: "ffmpeg"}
}

func (f *FFmpeg) run(ctx context.Context, action string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.FFmpegPath, args...)
	buf := subprocess.NewHeadTailBuffer(stderrExcerptBytes)
	cmd.Stderr = buf
	if err := subprocess.LogStdout(cmd); err != nil {
		return errors.NewToolchainFailure(fmt.Sprintf("%s: opening stdout pipe", action), err.Error())
	}

	log.LogNoRequestID("invoking toolchain", "action", action, "argv", args)
	if err := cmd.Run(); err != nil {
		return errors.NewToolchainFailure(fmt.Sprintf("%s: %s", action, err), buf.Excerpt())
	}
	return nil
}

// ProbeEncoders inspects `ffmpeg -encoders` and returns the strongest
// hardware encoder available, falling back to CPU H.264 (§4.A).
func (f *FFmpeg) ProbeEncoders(ctx context.Context) (Encoder, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath, "-hide_banner", "-encoders")
	out, err := cmd.Output()
	if err != nil {
		return "", errors.NewToolchainFailure("probing encoders", err.Error())
	}

	listing := string(out)
	for _, enc := range []Encoder{EncoderHEVCNVENC, EncoderH264NVENC} {
		if containsEncoder(listing, string(enc)) {
			return enc, nil
		}
	}
	return EncoderH264CPU, nil
}

func containsEncoder(listing, name string) bool {
	for i := 0; i+len(name) <= len(listing); i++ {
		if listing[i:i+len(name)] == name {
			return true
		}
	}
	return false
}

// ExtractFrames splits input into individual PNG frames at the given frame
// rate, written under framesDirPattern (e.g. ".../frame_%06d.png") (§6).
func (f *FFmpeg) ExtractFrames(ctx context.Context, input, framesDirPattern string, fps float64) error {
	return f.run(ctx, "extract_frames",
		"-y", "-i", input,
		"-vf", fmt.Sprintf("fps=%v", fps),
		framesDirPattern,
	)
}

// ExtractAudio produces 16 kHz mono PCM-16, stripping metadata (§4.A, §6).
func (f *FFmpeg) ExtractAudio(ctx context.Context, input, outWAV string) error {
	return f.run(ctx, "extract_audio",
		"-y", "-i", input,
		"-vn", "-acodec", "pcm_s16le", "-ar", "16000",
		"-map_metadata", "-1",
		outWAV,
	)
}

// Mux assembles frame_%06d.png files with the masked/extracted audio track
// (§4.A, §6). Quality params are fixed per the encoder class.
func (f *FFmpeg) Mux(ctx context.Context, p MuxParams) error {
	args := []string{
		"-y",
		"-framerate", fmt.Sprintf("%v", p.FPS),
		"-i", p.FramesDirPattern,
		"-i", p.AudioPath,
		"-c:v", string(p.Encoder),
		"-pix_fmt", "yuv420p",
	}
	if p.Encoder.IsHardware() {
		args = append(args, "-rc", "vbr", "-cq", "23", "-preset", "fast")
	} else {
		args = append(args, "-preset", "fast")
	}
	args = append(args,
		"-c:a", "aac", "-b:a", "128k",
		"-shortest",
		"-map_metadata", "-1",
		p.Output,
	)
	return f.run(ctx, "mux", args...)
}

// StripMetadata performs a metadata-only stream copy (§4.A, §6).
func (f *FFmpeg) StripMetadata(ctx context.Context, input, output string) error {
	return f.run(ctx, "strip_metadata",
		"-y", "-i", input,
		"-c:v", "copy", "-c:a", "copy",
		"-map_metadata", "-1",
		output,
	)
}

// Compress re-encodes at a CRF chosen by the caller from the size-ratio
// table (§4.A), preserving resolution.
func (f *FFmpeg) Compress(ctx context.Context, input, output string, crf int, width, height int) error {
	return f.run(ctx, "compress",
		"-y", "-i", input,
		"-c:v", "libx264", "-crf", fmt.Sprintf("%d", crf), "-preset", "slow",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-c:a", "aac", "-b:a", "192k",
		output,
	)
}

// CRFForRatio implements the size-ratio-to-CRF table carried over from the
// original implementation's process_compress_task.
func CRFForRatio(ratio float64) int {
	switch {
	case ratio >= 0.8:
		return 18
	case ratio >= 0.6:
		return 20
	case ratio >= 0.4:
		return 23
	default:
		return 26
	}
}
