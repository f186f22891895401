package toolchain

import "context"

// Call records one method invocation against a Recorder.
type Call struct {
	Method string
	Args   []string
}

// Recorder is a Toolchain test double: it records every call it receives
// instead of shelling out, so pipeline-runner tests can assert on exact
// argument lists without an ffmpeg binary on PATH (§9).
type Recorder struct {
	Calls []Call

	ProbeResult     ProbeResult
	ProbeErr        error
	EncoderResult   Encoder
	ProbeEncErr     error
	ExtractFramesErr error
	ExtractAudioErr error
	MuxErr          error
	StripErr        error
	CompressErr     error
}

func (r *Recorder) Probe(_ context.Context, input string) (ProbeResult, error) {
	r.Calls = append(r.Calls, Call{Method: "Probe", Args: []string{input}})
	return r.ProbeResult, r.ProbeErr
}

func (r *Recorder) ProbeEncoders(_ context.Context) (Encoder, error) {
	r.Calls = append(r.Calls, Call{Method: "ProbeEncoders"})
	if r.EncoderResult == "" && r.ProbeEncErr == nil {
		return EncoderH264CPU, nil
	}
	return r.EncoderResult, r.ProbeEncErr
}

func (r *Recorder) ExtractFrames(_ context.Context, input, framesDirPattern string, fps float64) error {
	r.Calls = append(r.Calls, Call{Method: "ExtractFrames", Args: []string{input, framesDirPattern}})
	return r.ExtractFramesErr
}

func (r *Recorder) ExtractAudio(_ context.Context, input, outWAV string) error {
	r.Calls = append(r.Calls, Call{Method: "ExtractAudio", Args: []string{input, outWAV}})
	return r.ExtractAudioErr
}

func (r *Recorder) Mux(_ context.Context, p MuxParams) error {
	r.Calls = append(r.Calls, Call{Method: "Mux", Args: []string{p.FramesDirPattern, p.AudioPath, p.Output, string(p.Encoder)}})
	return r.MuxErr
}

func (r *Recorder) StripMetadata(_ context.Context, input, output string) error {
	r.Calls = append(r.Calls, Call{Method: "StripMetadata", Args: []string{input, output}})
	return r.StripErr
}

func (r *Recorder) Compress(_ context.Context, input, output string, crf int, width, height int) error {
	r.Calls = append(r.Calls, Call{Method: "Compress", Args: []string{input, output}})
	return r.CompressErr
}

var _ Toolchain = (*Recorder)(nil)
