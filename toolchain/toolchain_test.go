package toolchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRFForRatio(t *testing.T) {
	require.Equal(t, 18, CRFForRatio(0.9))
	require.Equal(t, 18, CRFForRatio(0.8))
	require.Equal(t, 20, CRFForRatio(0.7))
	require.Equal(t, 20, CRFForRatio(0.6))
	require.Equal(t, 23, CRFForRatio(0.5))
	require.Equal(t, 23, CRFForRatio(0.4))
	require.Equal(t, 26, CRFForRatio(0.31))
	require.Equal(t, 26, CRFForRatio(0.1))
}

func TestEncoderIsHardware(t *testing.T) {
	require.True(t, EncoderHEVCNVENC.IsHardware())
	require.True(t, EncoderH264NVENC.IsHardware())
	require.False(t, EncoderH264CPU.IsHardware())
}

func TestParseFps(t *testing.T) {
	fps, err := parseFps("30000/1001")
	require.NoError(t, err)
	require.InDelta(t, 29.97, fps, 0.01)

	fps, err = parseFps("")
	require.NoError(t, err)
	require.Equal(t, 0.0, fps)

	fps, err = parseFps("25/0")
	require.Error(t, err)

	fps, err = parseFps("0/0")
	require.NoError(t, err)
	require.Equal(t, 0.0, fps)
}

func TestRecorderSatisfiesToolchain(t *testing.T) {
	rec := &Recorder{ProbeResult: ProbeResult{FPS: 30, Width: 640, Height: 480}}
	var tc Toolchain = rec

	_, err := tc.Probe(context.Background(), "in.mp4")
	require.NoError(t, err)
	enc, err := tc.ProbeEncoders(context.Background())
	require.NoError(t, err)
	require.Equal(t, EncoderH264CPU, enc)
	require.NoError(t, tc.ExtractFrames(context.Background(), "in.mp4", "frames/frame_%06d.png", 30))
	require.NoError(t, tc.ExtractAudio(context.Background(), "in.mp4", "out.wav"))
	require.NoError(t, tc.Mux(context.Background(), MuxParams{Output: "out.mp4", Encoder: EncoderH264CPU}))
	require.NoError(t, tc.StripMetadata(context.Background(), "in.mp4", "out.mp4"))
	require.NoError(t, tc.Compress(context.Background(), "in.mp4", "out.mp4", 23, 640, 480))

	require.Len(t, rec.Calls, 7)
	require.Equal(t, "Probe", rec.Calls[0].Method)
	require.Equal(t, []string{"in.mp4"}, rec.Calls[0].Args)
	require.Equal(t, "Mux", rec.Calls[4].Method)
	require.Equal(t, []string{"", "", "out.mp4", "libx264"}, rec.Calls[4].Args)
}
