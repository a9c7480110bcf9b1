package tensor

// Conv2DParams holds the symmetric stride and zero padding of a convolution.
type Conv2DParams struct {
	Stride  int
	Padding int
}

// Pool2DParams holds the window, stride and padding of a pooling operation.
// Padded positions never win a max-pool window.
type Pool2DParams struct {
	KernelSize int
	Stride     int
	Padding    int
}

// Backend defines the kernels a compute backend must implement.
//
// Forward kernels cover the layers of the supported CNN backbones. The
// *Backward kernels return the gradient with respect to the activation input
// only: network weights are frozen at inference time, so no parameter
// gradients are ever produced.
//
// Implementations:
//   - CPU: pure Go with gonum GEMM (internal/backend/cpu)
//   - autodiff.Backend: decorator recording operations on a gradient tape
type Backend interface {
	// Element-wise operations (operands must have identical shapes)
	Add(a, b *Tensor) *Tensor
	ReLU(x *Tensor) *Tensor

	// Convolution and pooling over NCHW tensors
	Conv2D(input, kernel, bias *Tensor, p Conv2DParams) *Tensor
	MaxPool2D(input *Tensor, p Pool2DParams) *Tensor
	AdaptiveAvgPool2D(input *Tensor, outH, outW int) *Tensor

	// ChannelAffine computes input[n,c,h,w]*scale[c] + shift[c]
	// (batch normalization in evaluation mode, folded).
	ChannelAffine(input, scale, shift *Tensor) *Tensor

	// Linear computes input @ weight.T + bias for input [N, in] and weight [out, in].
	Linear(input, weight, bias *Tensor) *Tensor

	// Reshape returns a tensor with the same data and a new shape.
	Reshape(x *Tensor, shape Shape) *Tensor

	// Input-gradient kernels
	ReLUBackward(input, grad *Tensor) *Tensor
	Conv2DInputBackward(input, kernel, grad *Tensor, p Conv2DParams) *Tensor
	MaxPool2DBackward(input, grad *Tensor, p Pool2DParams) *Tensor
	AdaptiveAvgPool2DBackward(input, grad *Tensor) *Tensor
	ChannelAffineBackward(grad, scale *Tensor) *Tensor
	LinearInputBackward(grad, weight *Tensor) *Tensor

	// Metadata
	Name() string
	Device() Device
}
