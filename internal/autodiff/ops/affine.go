package ops

import "github.com/born-ml/spinesight/internal/tensor"

// ChannelAffineOp records output = input*scale[c] + shift[c].
type ChannelAffineOp struct {
	input  *tensor.Tensor
	scale  *tensor.Tensor
	output *tensor.Tensor
}

// NewChannelAffineOp creates a new ChannelAffine operation.
func NewChannelAffineOp(input, scale, output *tensor.Tensor) *ChannelAffineOp {
	return &ChannelAffineOp{
		input:  input,
		scale:  scale,
		output: output,
	}
}

// Backward scales the output gradient per channel.
func (op *ChannelAffineOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.ChannelAffineBackward(outputGrad, op.scale)}
}

// Inputs returns [input].
func (op *ChannelAffineOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the affine result.
func (op *ChannelAffineOp) Output() *tensor.Tensor {
	return op.output
}
