// Package cpu implements the CPU backend. Matrix products (convolution via
// im2col and fully connected layers) are delegated to gonum's blas32 GEMM.
package cpu

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// alloc creates a zero-filled result tensor on this backend's device.
func (cpu *CPUBackend) alloc(op string, shape tensor.Shape) *tensor.Tensor {
	t, err := tensor.New(shape, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return t
}

// Add performs element-wise addition of two tensors with identical shapes.
func (cpu *CPUBackend) Add(a, b *tensor.Tensor) *tensor.Tensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("add: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	result := cpu.alloc("add", a.Shape())
	out := result.Data()
	bData := b.Data()
	for i, v := range a.Data() {
		out[i] = v + bData[i]
	}
	return result
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.Tensor) *tensor.Tensor {
	result := cpu.alloc("relu", x.Shape())
	out := result.Data()
	for i, v := range x.Data() {
		if v > 0 {
			out[i] = v
		}
	}
	return result
}

// ReLUBackward routes grad through positions where input > 0.
func (cpu *CPUBackend) ReLUBackward(input, grad *tensor.Tensor) *tensor.Tensor {
	result := cpu.alloc("relu backward", input.Shape())
	out := result.Data()
	gradData := grad.Data()
	for i, v := range input.Data() {
		if v > 0 {
			out[i] = gradData[i]
		}
	}
	return result
}

// Reshape returns a view of x with a new shape.
func (cpu *CPUBackend) Reshape(x *tensor.Tensor, shape tensor.Shape) *tensor.Tensor {
	view, err := x.View(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}
