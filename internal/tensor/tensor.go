// Package tensor provides the dense float32 tensor used by the inference pipeline.
//
// Tensors are row-major and always contiguous. Views created by Reshape share
// the underlying buffer with their source, which is how network parameters
// are shared read-only between concurrent requests.
package tensor

import "fmt"

// Tensor is a contiguous float32 tensor.
//
// The grad/requiresGrad pair mirrors the "leaf with gradient" concept of
// reverse-mode autodiff: only tensors marked with RequireGrad receive a
// gradient when a tape runs its backward pass.
type Tensor struct {
	shape        Shape
	strides      []int
	data         []float32
	device       Device
	grad         *Tensor
	requiresGrad bool
}

// New creates a zero-filled tensor of the given shape.
func New(shape Shape, device Device) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Tensor{
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		data:    make([]float32, shape.NumElements()),
		device:  device,
	}, nil
}

// Zeros creates a zero-filled CPU tensor. Panics on an invalid shape.
func Zeros(shape Shape) *Tensor {
	t, err := New(shape, CPU)
	if err != nil {
		panic(fmt.Sprintf("zeros: %v", err))
	}
	return t
}

// ZerosLike creates a zero-filled tensor with the same shape and device as t.
func ZerosLike(t *Tensor) *Tensor {
	return &Tensor{
		shape:   t.shape.Clone(),
		strides: t.shape.ComputeStrides(),
		data:    make([]float32, len(t.data)),
		device:  t.device,
	}
}

// FromSlice creates a CPU tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape, CPU)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Device returns the tensor's compute device.
func (t *Tensor) Device() Device {
	return t.device
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying storage (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor
// and every view sharing its buffer.
func (t *Tensor) Data() []float32 {
	return t.data
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset += idx * t.strides[i]
	}
	return offset
}

// View returns a tensor with a new shape sharing this tensor's buffer.
// The view does not inherit gradient tracking.
func (t *Tensor) View(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("cannot view %v (%d elements) as %v", t.shape, len(t.data), shape)
	}
	return &Tensor{
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		data:    t.data,
		device:  t.device,
	}, nil
}

// Clone creates a deep copy of the tensor without gradient state.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{
		shape:   t.shape.Clone(),
		strides: t.shape.ComputeStrides(),
		data:    data,
		device:  t.device,
	}
}

// Equal reports whether both tensors have the same shape and bit-identical values.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i, v := range t.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float32]%v on %s", t.shape, t.device)
}

// RequireGrad marks this tensor for gradient computation.
// Returns the tensor itself for method chaining.
func (t *Tensor) RequireGrad() *Tensor {
	t.requiresGrad = true
	return t
}

// RequiresGrad returns true if this tensor requires gradient computation.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// Grad returns the accumulated gradient, or nil before any backward pass.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// SetGrad replaces the accumulated gradient.
func (t *Tensor) SetGrad(grad *Tensor) {
	t.grad = grad
}

// AccumulateGrad adds grad into the tensor's accumulated gradient.
func (t *Tensor) AccumulateGrad(grad *Tensor) {
	if t.grad == nil {
		t.grad = grad.Clone()
		return
	}
	dst := t.grad.data
	for i, v := range grad.data {
		dst[i] += v
	}
}

// ZeroGrad clears the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	t.grad = nil
}
