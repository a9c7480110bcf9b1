package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/spinesight/internal/tensor"
)

// Linear is a fully connected layer: output = input @ weight.T + bias.
//
// Input shape:  [batch, in_features]
// Weight shape: [out_features, in_features]
// Output shape: [batch, out_features]
type Linear struct {
	inFeatures  int
	outFeatures int

	weight *Parameter
	bias   *Parameter
}

// NewLinear creates a new Linear layer with Xavier-initialized weights and zero bias.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("linear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng)),
		bias:        NewParameter("bias", tensor.Zeros(tensor.Shape{outFeatures})),
	}
}

// Forward applies the layer.
func (l *Linear) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("linear: expected input [N, %d], got %v", l.inFeatures, shape))
	}
	return b.Linear(input, l.weight.Tensor(), l.bias.Tensor())
}

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}

// StateDict returns weight and bias.
func (l *Linear) StateDict() map[string]*tensor.Tensor {
	return stateDict(l.weight, l.bias)
}
