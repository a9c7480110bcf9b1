package ops

import "github.com/born-ml/spinesight/internal/tensor"

// LinearOp records output = input @ weight^T + bias.
//
// Backward (input only):
//
//	grad_input = grad_output @ weight
type LinearOp struct {
	input  *tensor.Tensor // [N, in]
	weight *tensor.Tensor // [out, in]
	output *tensor.Tensor // [N, out]
}

// NewLinearOp creates a new Linear operation.
func NewLinearOp(input, weight, output *tensor.Tensor) *LinearOp {
	return &LinearOp{
		input:  input,
		weight: weight,
		output: output,
	}
}

// Backward computes the gradient with respect to the layer input.
func (op *LinearOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.LinearInputBackward(outputGrad, op.weight)}
}

// Inputs returns [input].
func (op *LinearOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the layer output.
func (op *LinearOp) Output() *tensor.Tensor {
	return op.output
}
