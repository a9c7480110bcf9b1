package ops

import "github.com/born-ml/spinesight/internal/tensor"

// MaxPool2DOp records a 2D max pooling.
//
// Backward: each output gradient flows only to the input position that held
// the window maximum; all other positions receive zero.
type MaxPool2DOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
	params tensor.Pool2DParams
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
func NewMaxPool2DOp(input, output *tensor.Tensor, p tensor.Pool2DParams) *MaxPool2DOp {
	return &MaxPool2DOp{
		input:  input,
		output: output,
		params: p,
	}
}

// Backward routes the output gradient to each window argmax.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.MaxPool2DBackward(op.input, outputGrad, op.params)}
}

// Inputs returns [input].
func (op *MaxPool2DOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the pooled tensor.
func (op *MaxPool2DOp) Output() *tensor.Tensor {
	return op.output
}

// AdaptiveAvgPool2DOp records an adaptive average pooling.
type AdaptiveAvgPool2DOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewAdaptiveAvgPool2DOp creates a new AdaptiveAvgPool2D operation.
func NewAdaptiveAvgPool2DOp(input, output *tensor.Tensor) *AdaptiveAvgPool2DOp {
	return &AdaptiveAvgPool2DOp{
		input:  input,
		output: output,
	}
}

// Backward spreads each output gradient evenly over its pooling bin.
func (op *AdaptiveAvgPool2DOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.AdaptiveAvgPool2DBackward(op.input, outputGrad)}
}

// Inputs returns [input].
func (op *AdaptiveAvgPool2DOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the pooled tensor.
func (op *AdaptiveAvgPool2DOp) Output() *tensor.Tensor {
	return op.output
}
