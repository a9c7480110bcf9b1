package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/spinesight/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// rng makes initialization reproducible; a nil rng yields zeros, which is
// what modules about to be overwritten by LoadStateDict use.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	t := tensor.Zeros(shape)
	if rng == nil {
		return t
	}

	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := t.Data()
	for i := range data {
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// Fill creates a CPU tensor with every element set to value.
func Fill(shape tensor.Shape, value float32) *tensor.Tensor {
	t := tensor.Zeros(shape)
	if value != 0 {
		data := t.Data()
		for i := range data {
			data[i] = value
		}
	}
	return t
}
