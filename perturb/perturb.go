// Package perturb implements the adversarial frame perturbation engine
// (§4.B): an Expectation-over-Transformation (EOT) FGSM attack against a
// fixed, non-trainable surrogate classifier, bounded by an L∞ budget derived
// from a task's epsilon/strength parameters.
package perturb

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"

	xdraw "golang.org/x/image/draw"
)

// eotIterations is K in §4.B: the number of independently-augmented forward
// passes averaged before taking the sign step.
const eotIterations = 4

// lossWeight scales the cross-entropy gradient before the sign step; it has
// no effect on the sign itself, only on the degenerate-gradient check below.
const lossWeight = 3.0

// degenerateGradientEpsilon is the magnitude below which an averaged
// gradient is treated as having vanished (flat or saturated classifier
// response), in which case the frame is returned unperturbed.
const degenerateGradientEpsilon = 1e-9

// minFrameDimension is the smallest frame edge this engine will bother
// perturbing; anything smaller carries too few pixels for the 224x224
// classifier resize to be meaningful.
const minFrameDimension = 32

// Engine runs the EOT/FGSM attack against a single fixed surrogate
// classifier instance, reused across every frame of a task.
type Engine struct {
	clf *classifier
}

// NewEngine builds a perturbation engine with the fixed, seeded surrogate
// classifier. Safe for concurrent use: the classifier's weights are never
// mutated after construction.
func NewEngine() *Engine {
	return &Engine{clf: newClassifier()}
}

// Result reports whether a frame's perturbation step was skipped, so the
// caller can track the "non-degenerate frames" testable property.
type Result struct {
	Image     *image.RGBA
	Skipped   bool
	SkipCause string
}

// Perturb applies one EOT/FGSM step to img, bounded by epsilon*strength in
// normalised input space (§4.B). epsilon in [0.01, 0.5], strength in
// [0.1, 2.0]. rngSeed lets callers reproduce a given frame's perturbation
// deterministically (e.g. in tests), independent of other frames.
func (e *Engine) Perturb(img image.Image, epsilon, strength float64, rngSeed int64) Result {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < minFrameDimension || h < minFrameDimension {
		return Result{Image: toRGBA(img), Skipped: true, SkipCause: "frame too small"}
	}

	base := downsampleNormalize(img)
	rng := rand.New(rand.NewSource(rngSeed))

	accum := make([]float64, poolGrid*poolGrid*numChannels)
	for i := 0; i < eotIterations; i++ {
		transformed := augment(base, rng)
		grad := e.clf.gradWRTInput(transformed.pool(), lossWeight)
		for j, v := range grad {
			accum[j] += v / float64(eotIterations)
		}
	}

	var gradNorm float64
	for _, v := range accum {
		gradNorm += v * v
	}
	gradNorm = math.Sqrt(gradNorm)
	if gradNorm < degenerateGradientEpsilon {
		return Result{Image: toRGBA(img), Skipped: true, SkipCause: "degenerate gradient"}
	}

	budget := epsilon * strength
	signTensor := unpool(accum)
	for c := 0; c < numChannels; c++ {
		for y := range signTensor.data[c] {
			for x := range signTensor.data[c][y] {
				v := signTensor.data[c][y][x]
				switch {
				case v > 0:
					signTensor.data[c][y][x] = budget
				case v < 0:
					signTensor.data[c][y][x] = -budget
				default:
					signTensor.data[c][y][x] = 0
				}
			}
		}
	}

	perturbationSmall := signTensor.signImage()
	perturbationFull := image.NewRGBA(bounds)
	xdraw.BiLinear.Scale(perturbationFull, bounds, perturbationSmall, perturbationSmall.Bounds(), xdraw.Src, nil)

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, toRGBA(img), bounds.Min, draw.Src)
	applyPerturbation(out, perturbationFull, budget)

	return Result{Image: out}
}

// applyPerturbation reads the per-channel sign from signField and adds
// ±budget*std*255 (via addDelta) onto out in raw 0-255 pixel space, clipping
// to the valid range.
func applyPerturbation(out *image.RGBA, signField *image.RGBA, budget float64) {
	bounds := out.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			orig := out.RGBAAt(x, y)
			sign := signField.RGBAAt(x, y)
			out.SetRGBA(x, y, addDelta(orig, sign, budget))
		}
	}
}

func addDelta(orig, sign color.RGBA, budget float64) color.RGBA {
	channels := [numChannels]uint8{orig.R, orig.G, orig.B}
	signBytes := [numChannels]uint8{sign.R, sign.G, sign.B}
	std := channelStd
	out := color.RGBA{A: orig.A}
	outChannels := [numChannels]*uint8{&out.R, &out.G, &out.B}
	for c := 0; c < numChannels; c++ {
		var signedBudget float64
		switch {
		case signBytes[c] > 128:
			signedBudget = budget
		case signBytes[c] < 128:
			signedBudget = -budget
		default:
			signedBudget = 0
		}
		delta := signedBudget * std[c] * 255
		v := float64(channels[c]) + delta
		v = math.Max(0, math.Min(255, v))
		*outChannels[c] = uint8(v)
	}
	return out
}

func toRGBA(img image.Image) *image.RGBA {
	if rgbaImg, ok := img.(*image.RGBA); ok {
		return rgbaImg
	}
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	return out
}
