package perturb

import (
	"math"
	"math/rand"
)

// classifierSeed fixes the surrogate classifier's weights across process
// restarts: the contract is the input normalisation and the L∞-bounded
// sign-step, not classification accuracy, so the network never needs to
// train or be loaded from disk (§9 "Fixed surrogate classifier").
const classifierSeed = 0x5eed

// poolGrid pools the normalised 224x224x3 tensor down to a poolGrid x
// poolGrid x channels feature vector before the linear layers, keeping the
// weight matrices small enough to hand-initialise.
const (
	poolGrid    = 28
	numChannels = 3
	hiddenSize  = 64
	numClasses  = 10
)

// classifier is a fixed two-layer linear network (average-pool -> linear ->
// ReLU -> linear) used only to produce a loss gradient with respect to its
// input pixels. It is never trained; NewClassifier always yields identical
// weights.
type classifier struct {
	w1 [][]float64 // hiddenSize x (poolGrid*poolGrid*numChannels)
	b1 []float64
	w2 [][]float64 // numClasses x hiddenSize
	b2 []float64
}

func newClassifier() *classifier {
	rng := rand.New(rand.NewSource(classifierSeed))
	inputSize := poolGrid * poolGrid * numChannels

	c := &classifier{
		w1: randMatrix(rng, hiddenSize, inputSize, 1.0/float64(inputSize)),
		b1: make([]float64, hiddenSize),
		w2: randMatrix(rng, numClasses, hiddenSize, 1.0/float64(hiddenSize)),
		b2: make([]float64, numClasses),
	}
	return c
}

func randMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	return m
}

// forward pass. Returns logits, the hidden pre-activations (for backward),
// and the hidden ReLU activations.
func (c *classifier) forward(pooled []float64) (logits, hiddenPre, hiddenAct []float64) {
	hiddenPre = make([]float64, hiddenSize)
	hiddenAct = make([]float64, hiddenSize)
	for i := 0; i < hiddenSize; i++ {
		sum := c.b1[i]
		row := c.w1[i]
		for j, v := range pooled {
			sum += row[j] * v
		}
		hiddenPre[i] = sum
		if sum > 0 {
			hiddenAct[i] = sum
		}
	}

	logits = make([]float64, numClasses)
	for i := 0; i < numClasses; i++ {
		sum := c.b2[i]
		row := c.w2[i]
		for j, v := range hiddenAct {
			sum += row[j] * v
		}
		logits[i] = sum
	}
	return logits, hiddenPre, hiddenAct
}

func softmax(logits []float64) []float64 {
	maxV := logits[0]
	for _, v := range logits {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - maxV)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// gradWRTInput runs the forward pass, computes a (weighted) cross-entropy
// loss against the classifier's own top prediction (untargeted attack: push
// the input away from whatever the classifier currently believes), and
// backpropagates the gradient to the pooled input vector.
func (c *classifier) gradWRTInput(pooled []float64, lossWeight float64) []float64 {
	logits, hiddenPre, hiddenAct := c.forward(pooled)
	probs := softmax(logits)
	label := argmax(logits)

	// dL/dlogits for cross-entropy against `label`, scaled by lossWeight.
	dLogits := make([]float64, numClasses)
	for i := range dLogits {
		dLogits[i] = probs[i] * lossWeight
	}
	dLogits[label] -= lossWeight

	dHiddenAct := make([]float64, hiddenSize)
	for i := 0; i < numClasses; i++ {
		row := c.w2[i]
		for j := range dHiddenAct {
			dHiddenAct[j] += dLogits[i] * row[j]
		}
	}

	dHiddenPre := make([]float64, hiddenSize)
	for i := range dHiddenPre {
		if hiddenPre[i] > 0 {
			dHiddenPre[i] = dHiddenAct[i]
		}
	}

	dInput := make([]float64, len(pooled))
	for i := 0; i < hiddenSize; i++ {
		row := c.w1[i]
		g := dHiddenPre[i]
		if g == 0 {
			continue
		}
		for j := range dInput {
			dInput[j] += g * row[j]
		}
	}
	return dInput
}
