// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation implements the Operation interface, which provides:
//   - Forward pass: computed by the backend
//   - Backward pass: computes input gradients given the output gradient
//
// Network parameters are frozen, so operations that consume weights (Conv2D,
// Linear, ChannelAffine) only propagate to their activation input; the
// weight slots of Inputs() are omitted.
//
// Supported operations:
//   - AddOp: element-wise addition (d(a+b)/da = 1, d(a+b)/db = 1)
//   - ReLUOp: d(ReLU(x))/dx = 1 if x > 0, else 0
//   - Conv2DOp: transposed convolution of the output gradient
//   - MaxPool2DOp: gradient routed to the window argmax
//   - AdaptiveAvgPool2DOp: gradient spread evenly over each bin
//   - ChannelAffineOp: gradient scaled per channel
//   - LinearOp: d(x@W^T)/dx = grad@W
//   - ReshapeOp: gradient reshaped back to the input shape
package ops

import "github.com/born-ml/spinesight/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	Backward(outputGrad *tensor.Tensor, backend tensor.Backend) []*tensor.Tensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.Tensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.Tensor
}
