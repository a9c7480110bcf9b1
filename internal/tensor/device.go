package tensor

import (
	"fmt"
	"strings"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices. Only CPU has a backend in this build;
// the others exist so configuration can name them and fail cleanly.
const (
	CPU Device = iota
	CUDA
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// ParseDevice converts a configuration value ("cpu", "cuda", "webgpu") to a Device.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "cuda":
		return CUDA, nil
	case "webgpu", "gpu":
		return WebGPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q", s)
	}
}
