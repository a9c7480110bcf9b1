package ops

import "github.com/born-ml/spinesight/internal/tensor"

// ReLUOp represents a ReLU activation: output = max(0, x).
type ReLUOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.Tensor) *ReLUOp {
	return &ReLUOp{
		input:  input,
		output: output,
	}
}

// Backward masks the output gradient with input > 0.
func (op *ReLUOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.ReLUBackward(op.input, outputGrad)}
}

// Inputs returns [x].
func (op *ReLUOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns max(0, x).
func (op *ReLUOp) Output() *tensor.Tensor {
	return op.output
}
