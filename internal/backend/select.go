// Package backend selects the compute backend used for inference.
package backend

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/backend/cpu"
	"github.com/born-ml/spinesight/internal/tensor"
)

// Select returns the backend for a device preference.
//
// "auto" and "cpu" resolve to the CPU backend. Accelerator devices parse but
// are reported as unavailable in this build.
func Select(pref string) (tensor.Backend, error) {
	if pref == "" || pref == "auto" {
		return cpu.New(), nil
	}
	device, err := tensor.ParseDevice(pref)
	if err != nil {
		return nil, err
	}
	if device != tensor.CPU {
		return nil, fmt.Errorf("device %s is not available in this build", device)
	}
	return cpu.New(), nil
}
