package perturb

import "math/rand"

// Augmentation probabilities and ranges, fixed per §4.B step 2 (EOT).
const (
	gaussianNoiseProb  = 0.5
	gaussianNoiseSigma = 0.008
	jitterProb         = 0.4
	jitterMin          = 0.92
	jitterMax          = 1.08
)

// augment applies the EOT transformations used to make the perturbation
// robust to the sort of re-encoding the mux step will apply: additive
// Gaussian noise and a brightness/contrast jitter, each independently
// gated by its own probability. Operates in-place on a copy of t.
func augment(t *tensor, rng *rand.Rand) *tensor {
	out := &tensor{}
	for c := 0; c < numChannels; c++ {
		rows := make([][]float64, classifierInputSize)
		for r := range rows {
			rows[r] = append([]float64(nil), t.data[c][r]...)
		}
		out.data[c] = rows
	}

	if rng.Float64() < gaussianNoiseProb {
		for c := 0; c < numChannels; c++ {
			for y := range out.data[c] {
				for x := range out.data[c][y] {
					out.data[c][y][x] += rng.NormFloat64() * gaussianNoiseSigma
				}
			}
		}
	}

	if rng.Float64() < jitterProb {
		contrast := jitterMin + rng.Float64()*(jitterMax-jitterMin)
		brightnessShift := (rng.Float64()*2 - 1) * (jitterMax - 1)
		for c := 0; c < numChannels; c++ {
			for y := range out.data[c] {
				for x := range out.data[c][y] {
					out.data[c][y][x] = out.data[c][y][x]*contrast + brightnessShift
				}
			}
		}
	}

	return out
}
