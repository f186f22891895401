// Package audiomask implements the psychoacoustically shaped audio masker
// (§4.C): an envelope-scaled noise injection plus a fixed high-frequency
// carrier, operating on mono PCM-16 samples at a fixed sample rate.
package audiomask

import (
	"errors"
	"math"
	"math/rand"
)

var (
	ErrEmpty = errors.New("audio masker: empty input")
)

// carrierFreqHz and carrierAmplitude are fixed per §4.C.
const (
	carrierFreqHz    = 17000.0
	carrierAmplitude = 0.0028
	envelopeMinClip  = 0.04
	envelopeExponent = 1.5
	clipBound        = 0.999
	rmsWindowSamples = 256
)

// Levels maps the canonical §9 Open-Question-2 audio level names to additive
// noise standard deviations.
var Levels = map[string]float64{
	"weak":   0.0035,
	"medium": 0.0050,
	"strong": 0.0080,
}

// Mask applies the masking signal to samples (int16 PCM, mono) at the given
// sample rate, returning a new slice of the same length. level must be one
// of the keys in Levels.
func Mask(samples []int16, sampleRate int, level string) ([]int16, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	sigma, ok := Levels[level]
	if !ok {
		return nil, errors.New("audio masker: unknown level " + level)
	}

	floats := make([]float64, len(samples))
	for i, s := range samples {
		floats[i] = float64(s) / 32768.0
	}

	envelope := rmsEnvelope(floats, rmsWindowSamples)

	rng := rand.New(rand.NewSource(1))
	out := make([]int16, len(samples))
	for i, x := range floats {
		t := float64(i) / float64(sampleRate)
		noise := rng.NormFloat64()*sigma + carrierAmplitude*math.Sin(2*math.Pi*carrierFreqHz*t)
		masked := x + noise*envelope[i]
		masked = math.Max(-clipBound, math.Min(clipBound, masked))
		out[i] = int16(masked * 32767)
	}
	return out, nil
}

// rmsEnvelope computes a frame-level short-time RMS envelope, then resamples
// it by linear interpolation to per-sample length, min-clips at
// envelopeMinClip, normalises to [0, 1], and raises it to envelopeExponent
// (§4.C step 1).
func rmsEnvelope(samples []float64, window int) []float64 {
	n := len(samples)
	if window < 1 {
		window = 1
	}
	numFrames := (n + window - 1) / window
	if numFrames == 0 {
		numFrames = 1
	}
	frameRMS := make([]float64, numFrames)
	for f := 0; f < numFrames; f++ {
		start := f * window
		end := start + window
		if end > n {
			end = n
		}
		var sumSq float64
		for i := start; i < end; i++ {
			sumSq += samples[i] * samples[i]
		}
		count := end - start
		if count == 0 {
			frameRMS[f] = 0
		} else {
			frameRMS[f] = math.Sqrt(sumSq / float64(count))
		}
	}

	maxRMS := 0.0
	for _, v := range frameRMS {
		if v > maxRMS {
			maxRMS = v
		}
	}
	if maxRMS == 0 {
		maxRMS = 1
	}

	envelope := make([]float64, n)
	for i := 0; i < n; i++ {
		// linear interpolation between the two nearest frames, each anchored
		// at its first sample
		pos := float64(i) / float64(window)
		lo := int(math.Floor(pos))
		hi := lo + 1
		frac := pos - float64(lo)
		if lo >= numFrames {
			lo = numFrames - 1
		}
		if hi >= numFrames {
			hi = numFrames - 1
		}
		v := frameRMS[lo]*(1-frac) + frameRMS[hi]*frac
		v = math.Max(envelopeMinClip, v/maxRMS)
		envelope[i] = math.Pow(v, envelopeExponent)
	}
	return envelope
}
