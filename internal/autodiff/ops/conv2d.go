package ops

import "github.com/born-ml/spinesight/internal/tensor"

// Conv2DOp records a 2D convolution.
//
// Forward:
//
//	output = conv2d(input, kernel) + bias
//
// Backward (input only, weights are frozen):
//
//	grad_input = conv2d_transpose(grad_output, kernel)
type Conv2DOp struct {
	input  *tensor.Tensor // [N, C_in, H, W]
	kernel *tensor.Tensor // [C_out, C_in, K_h, K_w]
	output *tensor.Tensor // [N, C_out, H_out, W_out]
	params tensor.Conv2DParams
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.Tensor, p tensor.Conv2DParams) *Conv2DOp {
	return &Conv2DOp{
		input:  input,
		kernel: kernel,
		output: output,
		params: p,
	}
}

// Backward computes the gradient with respect to the convolution input.
func (op *Conv2DOp) Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor {
	return []*tensor.Tensor{backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.params)}
}

// Inputs returns [input].
func (op *Conv2DOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the convolution result.
func (op *Conv2DOp) Output() *tensor.Tensor {
	return op.output
}
