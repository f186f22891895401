package audiomask

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineWave(n, sampleRate int, freq float64) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		out[i] = int16(0.5 * 32767 * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

func TestMaskRejectsEmptyInput(t *testing.T) {
	_, err := Mask(nil, 16000, "weak")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMaskRejectsUnknownLevel(t *testing.T) {
	_, err := Mask(sineWave(100, 16000, 440), 16000, "loud")
	require.Error(t, err)
}

func TestMaskPreservesLengthAndClipsToRange(t *testing.T) {
	samples := sineWave(16000, 16000, 440)
	masked, err := Mask(samples, 16000, "strong")
	require.NoError(t, err)
	require.Len(t, masked, len(samples))
	bound := 32767 * clipBound
	for _, s := range masked {
		require.LessOrEqual(t, s, int16(bound)+1)
		require.GreaterOrEqual(t, s, -int16(bound)-1)
	}
}

func TestMaskIsDeterministic(t *testing.T) {
	samples := sineWave(8000, 16000, 440)
	a, err := Mask(samples, 16000, "medium")
	require.NoError(t, err)
	b, err := Mask(samples, 16000, "medium")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestWAVRoundTrip(t *testing.T) {
	samples := sineWave(4000, 16000, 440)
	var buf bytes.Buffer
	require.NoError(t, WriteMonoPCM16(&buf, samples, 16000))

	readBack, sampleRate, err := ReadMonoPCM16(&buf)
	require.NoError(t, err)
	require.Equal(t, 16000, sampleRate)
	require.Equal(t, samples, readBack)
}

func TestReadMonoPCM16RejectsEmptyData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMonoPCM16(&buf, nil, 16000))
	_, _, err := ReadMonoPCM16(&buf)
	require.Error(t, err)
}
