package nn

import (
	"github.com/born-ml/spinesight/internal/tensor"
)

// ReLU is the rectified linear activation.
type ReLU struct{}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return &ReLU{} }

// Forward applies max(0, x).
func (r *ReLU) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	return b.ReLU(input)
}

// StateDict returns an empty map.
func (r *ReLU) StateDict() map[string]*tensor.Tensor { return nil }

// MaxPool2D is a 2D max pooling layer with square windows.
type MaxPool2D struct {
	params tensor.Pool2DParams
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernelSize, stride, padding int) *MaxPool2D {
	return &MaxPool2D{params: tensor.Pool2DParams{KernelSize: kernelSize, Stride: stride, Padding: padding}}
}

// Forward applies max pooling.
func (m *MaxPool2D) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	return b.MaxPool2D(input, m.params)
}

// StateDict returns an empty map.
func (m *MaxPool2D) StateDict() map[string]*tensor.Tensor { return nil }

// AdaptiveAvgPool2D averages to a fixed spatial size regardless of input size.
type AdaptiveAvgPool2D struct {
	outH, outW int
}

// NewAdaptiveAvgPool2D creates an adaptive average pooling layer.
func NewAdaptiveAvgPool2D(outH, outW int) *AdaptiveAvgPool2D {
	return &AdaptiveAvgPool2D{outH: outH, outW: outW}
}

// Forward applies adaptive average pooling.
func (a *AdaptiveAvgPool2D) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	return b.AdaptiveAvgPool2D(input, a.outH, a.outW)
}

// StateDict returns an empty map.
func (a *AdaptiveAvgPool2D) StateDict() map[string]*tensor.Tensor { return nil }

// Dropout is the identity at inference time. It exists so that layer indices
// line up with checkpoints that were trained with dropout.
type Dropout struct{}

// NewDropout creates an inference-mode dropout layer.
func NewDropout() *Dropout { return &Dropout{} }

// Forward returns input unchanged.
func (d *Dropout) Forward(_ tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	return input
}

// StateDict returns an empty map.
func (d *Dropout) StateDict() map[string]*tensor.Tensor { return nil }

// Flatten collapses every dimension after the batch dimension.
type Flatten struct{}

// NewFlatten creates a flatten layer.
func NewFlatten() *Flatten { return &Flatten{} }

// Forward reshapes [N, ...] to [N, prod(...)].
func (f *Flatten) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	n := input.Shape()[0]
	return b.Reshape(input, tensor.Shape{n, input.NumElements() / n})
}

// StateDict returns an empty map.
func (f *Flatten) StateDict() map[string]*tensor.Tensor { return nil }
