package nn

import (
	"strconv"

	"github.com/born-ml/spinesight/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. State dict keys are
// prefixed with the module index, so
//
//	nn.NewSequential(conv, relu, pool, conv2)
//
// exposes "0.weight", "0.bias", "3.weight" and "3.bias", matching
// torch.nn.Sequential.
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(b, output)
	}
	return output
}

// Add appends a module to the sequence.
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Module(index int) Module {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// StateDict returns the parameters of every module prefixed with its index.
func (s *Sequential) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	for i, module := range s.modules {
		PrefixStateDict(sd, strconv.Itoa(i), module.StateDict())
	}
	return sd
}
