// Package nn implements the neural network modules used by the spine backbones.
//
// This package provides building blocks for frozen CNN inference:
//   - Module interface: Base interface for all NN components
//   - Parameter: Named weight tensor
//   - Conv2D, Linear, BatchNorm2D: layers with weights
//   - ReLU, MaxPool2D, AdaptiveAvgPool2D, Dropout, Flatten: stateless layers
//   - Sequential: Container for stacking layers
//
// Modules take the backend as a Forward argument rather than storing it. A
// loaded network is therefore immutable and can be shared between requests
// that each run with their own autodiff backend.
//
// Parameter naming follows PyTorch's state_dict convention so checkpoints
// exported from torch load without remapping.
package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/spinesight/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewConv2D(3, 64, 11, 4, 2, true, rng),
//	    nn.NewReLU(),
//	    nn.NewMaxPool2D(3, 2, 0),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor

	// StateDict returns the module's tensors keyed by their PyTorch names.
	// The returned tensors are the live storage, not copies.
	StateDict() map[string]*tensor.Tensor
}

// PrefixStateDict copies src into dst with every key prefixed by prefix and a dot.
func PrefixStateDict(dst map[string]*tensor.Tensor, prefix string, src map[string]*tensor.Tensor) {
	for name, t := range src {
		dst[prefix+"."+name] = t
	}
}

// ignoredKeySuffixes are checkpoint entries that carry training bookkeeping only.
var ignoredKeySuffixes = []string{"num_batches_tracked"}

func ignoredKey(key string) bool {
	for _, suffix := range ignoredKeySuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// LoadStateDict copies checkpoint tensors into a module.
//
// Loading is strict: every module tensor must be present with an identical
// shape and the checkpoint may not contain unknown keys. Keys ending in
// num_batches_tracked are ignored.
func LoadStateDict(m Module, stateDict map[string]*tensor.Tensor) error {
	target := m.StateDict()

	var missing, unexpected []string
	for key := range target {
		if _, ok := stateDict[key]; !ok {
			missing = append(missing, key)
		}
	}
	for key := range stateDict {
		if _, ok := target[key]; !ok && !ignoredKey(key) {
			unexpected = append(unexpected, key)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return fmt.Errorf("state dict mismatch: missing keys %v, unexpected keys %v", missing, unexpected)
	}

	for key, dst := range target {
		src := stateDict[key]
		if !dst.Shape().Equal(src.Shape()) {
			return fmt.Errorf("state dict mismatch: %s has shape %v, module expects %v", key, src.Shape(), dst.Shape())
		}
	}
	for key, dst := range target {
		copy(dst.Data(), stateDict[key].Data())
	}
	return nil
}

// NumParameters returns the total number of scalars held by a module.
func NumParameters(m Module) int {
	total := 0
	for _, t := range m.StateDict() {
		total += t.NumElements()
	}
	return total
}
