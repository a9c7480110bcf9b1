// Package autodiff implements reverse-mode automatic differentiation using the
// decorator pattern.
//
// AutodiffBackend wraps any tensor.Backend and records every forward kernel on
// a GradientTape. The tape is owned by the backend value, so a fresh
// AutodiffBackend per request is an isolated computation context: concurrent
// requests that share frozen network weights never share gradient state.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	logits := model.Forward(backend, input.RequireGrad())
//	backend.Tape().Backward(logits, seed, backend.Inner())
//	grad := input.Grad()
package autodiff

import (
	"github.com/born-ml/spinesight/internal/autodiff/ops"
	"github.com/born-ml/spinesight/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements tensor.Backend and records operations in a GradientTape.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend (CPU)
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.Tensor) *tensor.Tensor {
	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.Tensor) *tensor.Tensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// Conv2D performs 2D convolution and records the operation.
// Only the activation input receives a gradient.
func (b *AutodiffBackend[B]) Conv2D(input, kernel, bias *tensor.Tensor, p tensor.Conv2DParams) *tensor.Tensor {
	result := b.inner.Conv2D(input, kernel, bias, p)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, p))
	return result
}

// MaxPool2D performs max pooling and records the operation.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.Tensor, p tensor.Pool2DParams) *tensor.Tensor {
	result := b.inner.MaxPool2D(input, p)
	b.tape.Record(ops.NewMaxPool2DOp(input, result, p))
	return result
}

// AdaptiveAvgPool2D performs adaptive average pooling and records the operation.
func (b *AutodiffBackend[B]) AdaptiveAvgPool2D(input *tensor.Tensor, outH, outW int) *tensor.Tensor {
	result := b.inner.AdaptiveAvgPool2D(input, outH, outW)
	b.tape.Record(ops.NewAdaptiveAvgPool2DOp(input, result))
	return result
}

// ChannelAffine applies a per-channel scale and shift and records the operation.
func (b *AutodiffBackend[B]) ChannelAffine(input, scale, shift *tensor.Tensor) *tensor.Tensor {
	result := b.inner.ChannelAffine(input, scale, shift)
	b.tape.Record(ops.NewChannelAffineOp(input, scale, result))
	return result
}

// Linear applies a fully connected layer and records the operation.
func (b *AutodiffBackend[B]) Linear(input, weight, bias *tensor.Tensor) *tensor.Tensor {
	result := b.inner.Linear(input, weight, bias)
	b.tape.Record(ops.NewLinearOp(input, weight, result))
	return result
}

// Reshape changes the tensor shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.Tensor, shape tensor.Shape) *tensor.Tensor {
	result := b.inner.Reshape(x, shape)
	b.tape.Record(ops.NewReshapeOp(x, result))
	return result
}

// Backward kernels are delegated as-is; they are never recorded.

// ReLUBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ReLUBackward(input, grad *tensor.Tensor) *tensor.Tensor {
	return b.inner.ReLUBackward(input, grad)
}

// Conv2DInputBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.Tensor, p tensor.Conv2DParams) *tensor.Tensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, p)
}

// MaxPool2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) MaxPool2DBackward(input, grad *tensor.Tensor, p tensor.Pool2DParams) *tensor.Tensor {
	return b.inner.MaxPool2DBackward(input, grad, p)
}

// AdaptiveAvgPool2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) AdaptiveAvgPool2DBackward(input, grad *tensor.Tensor) *tensor.Tensor {
	return b.inner.AdaptiveAvgPool2DBackward(input, grad)
}

// ChannelAffineBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ChannelAffineBackward(grad, scale *tensor.Tensor) *tensor.Tensor {
	return b.inner.ChannelAffineBackward(grad, scale)
}

// LinearInputBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) LinearInputBackward(grad, weight *tensor.Tensor) *tensor.Tensor {
	return b.inner.LinearInputBackward(grad, weight)
}
