package model

import (
	"fmt"

	"github.com/chewxy/math32"
)

// The exported graph still names the loss it was trained with. Nothing at inference
// time calls it, but the reference must resolve for the model to be accepted, the
// same way the training framework refuses to deserialize unknown custom objects.

// lossEpsilon matches the clipping applied by Keras' binary_crossentropy.
const lossEpsilon = 1e-7

// LossFunc computes a scalar loss for one batch of labels and predictions.
type LossFunc func(yTrue, yPred []float32) float32

// WeightedBinaryCrossEntropy returns mean(bce(yTrue, yPred) * weights), computed per
// class. yTrue and yPred must have equal length; weights repeat across the batch and
// an empty weights slice means unweighted.
func WeightedBinaryCrossEntropy(yTrue, yPred, weights []float32) float32 {
	if len(yTrue) == 0 {
		return 0
	}

	var sum float32
	for i := range yTrue {
		p := math32.Min(math32.Max(yPred[i], lossEpsilon), 1-lossEpsilon)
		bce := -(yTrue[i]*math32.Log(p) + (1-yTrue[i])*math32.Log(1-p))
		if len(weights) > 0 {
			bce *= weights[i%len(weights)]
		}
		sum += bce
	}
	return sum / float32(len(yTrue))
}

// customObjects builds the name → loss registry the graph reference is resolved
// against. Missing weights default to all ones.
func customObjects(weights []float32, classes int) map[string]LossFunc {
	w := weights
	if w == nil {
		w = make([]float32, classes)
		for i := range w {
			w[i] = 1
		}
	}

	wrapped := func(yTrue, yPred []float32) float32 {
		return WeightedBinaryCrossEntropy(yTrue, yPred, w)
	}
	return map[string]LossFunc{
		"loss":                         wrapped,
		"weighted_binary_crossentropy": wrapped,
	}
}

// resolveLoss looks up the loss named by the metadata. An empty name means the
// default "loss" entry.
func resolveLoss(name string, weights []float32, classes int) (LossFunc, error) {
	if name == "" {
		name = "loss"
	}
	fn, ok := customObjects(weights, classes)[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown custom loss %q", ErrModelLoad, name)
	}
	return fn, nil
}
