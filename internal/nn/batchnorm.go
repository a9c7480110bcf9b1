package nn

import (
	"math"

	"github.com/born-ml/spinesight/internal/tensor"
)

// BatchNorm2D normalizes each channel with its running statistics
// (evaluation mode):
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// The statistics are folded into a per-channel scale and shift on every
// forward call, so a reloaded state dict takes effect immediately.
type BatchNorm2D struct {
	eps float64

	weight      *Parameter
	bias        *Parameter
	runningMean *Parameter
	runningVar  *Parameter
}

// NewBatchNorm2D creates a batch norm layer with PyTorch's defaults:
// unit weight, zero bias, zero mean, unit variance and eps = 1e-5.
func NewBatchNorm2D(channels int) *BatchNorm2D {
	shape := tensor.Shape{channels}
	return &BatchNorm2D{
		eps:         1e-5,
		weight:      NewParameter("weight", Fill(shape, 1)),
		bias:        NewParameter("bias", Fill(shape, 0)),
		runningMean: NewParameter("running_mean", Fill(shape, 0)),
		runningVar:  NewParameter("running_var", Fill(shape, 1)),
	}
}

// Forward applies the folded affine transform.
func (bn *BatchNorm2D) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	scale, shift := bn.fold()
	return b.ChannelAffine(input, scale, shift)
}

func (bn *BatchNorm2D) fold() (scale, shift *tensor.Tensor) {
	weight := bn.weight.Tensor().Data()
	bias := bn.bias.Tensor().Data()
	mean := bn.runningMean.Tensor().Data()
	variance := bn.runningVar.Tensor().Data()

	scale = tensor.Zeros(tensor.Shape{len(weight)})
	shift = tensor.Zeros(tensor.Shape{len(weight)})
	s, h := scale.Data(), shift.Data()
	for c := range weight {
		s[c] = weight[c] / float32(math.Sqrt(float64(variance[c])+bn.eps))
		h[c] = bias[c] - mean[c]*s[c]
	}
	return scale, shift
}

// StateDict returns weight, bias, running_mean and running_var.
func (bn *BatchNorm2D) StateDict() map[string]*tensor.Tensor {
	return stateDict(bn.weight, bn.bias, bn.runningMean, bn.runningVar)
}
