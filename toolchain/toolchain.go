// Package toolchain wraps the external media toolchain (§4.A): frame/audio
// extraction, muxing, metadata stripping, and compression, all delegated to
// ffmpeg/ffprobe subprocesses. Modelled as a capability interface (§9
// "Subprocess control") so tests can inject a Recorder that captures argv
// without ever shelling out.
package toolchain

import (
	"context"
)

// Encoder identifies the video encoder chosen by ProbeEncoders, in
// preference order (§4.A: HEVC hw > H.264 hw > CPU H.264).
type Encoder string

const (
	EncoderHEVCNVENC Encoder = "hevc_nvenc"
	EncoderH264NVENC Encoder = "h264_nvenc"
	EncoderH264CPU   Encoder = "libx264"
)

func (e Encoder) IsHardware() bool {
	return e == EncoderHEVCNVENC || e == EncoderH264NVENC
}

// ProbeResult is the subset of ffprobe's output the pipeline runner needs.
type ProbeResult struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
	Duration   float64
	HasAudio   bool
}

// MuxParams carries everything Mux needs to assemble frames + audio into an
// output container.
type MuxParams struct {
	FramesDirPattern string
	AudioPath        string
	FPS              float64
	Output           string
	Encoder          Encoder
}

// Toolchain is the interface every pipeline-runner dependency goes through.
// FFmpeg is the only real implementor; Recorder is its test double.
type Toolchain interface {
	Probe(ctx context.Context, input string) (ProbeResult, error)
	ProbeEncoders(ctx context.Context) (Encoder, error)
	ExtractFrames(ctx context.Context, input, framesDirPattern string, fps float64) error
	ExtractAudio(ctx context.Context, input, outWAV string) error
	Mux(ctx context.Context, params MuxParams) error
	StripMetadata(ctx context.Context, input, output string) error
	Compress(ctx context.Context, input, output string, crf int, width, height int) error
}
