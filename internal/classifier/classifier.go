// Package classifier runs a backbone over a preprocessed slice and turns its
// flat head into per-level severity distributions.
package classifier

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/apperr"
	"github.com/born-ml/spinesight/internal/backbone"
	"github.com/born-ml/spinesight/internal/backend/cpu"
	"github.com/born-ml/spinesight/internal/loader"
	"github.com/born-ml/spinesight/internal/nn"
	"github.com/born-ml/spinesight/internal/tensor"
)

// Classifier wraps a backbone network with loaded, frozen weights.
//
// A Classifier is immutable after construction and safe for concurrent use:
// Forward takes the backend per call, so every request can bring its own
// gradient tape.
type Classifier struct {
	arch        backbone.Architecture
	model       nn.Module
	backend     tensor.Backend
	weightsPath string
	numParams   int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithBackend selects the compute backend used by Classify. Defaults to CPU.
func WithBackend(b tensor.Backend) Option {
	return func(c *Classifier) {
		c.backend = b
	}
}

// New constructs the backbone and strictly loads its weights from weightsPath.
// Every failure (missing or corrupt file, missing or unexpected tensor, shape
// mismatch) is reported as apperr.ErrModelLoad.
func New(bb backbone.Backbone, weightsPath string, opts ...Option) (*Classifier, error) {
	st, err := loader.ReadFile(weightsPath)
	if err != nil {
		return nil, apperr.New(apperr.ErrModelLoad, "classifier.load", err)
	}
	sd, err := st.StateDict()
	if err != nil {
		return nil, apperr.New(apperr.ErrModelLoad, "classifier.load", fmt.Errorf("%s: %w", weightsPath, err))
	}

	model := bb.Construct(backbone.NumLevels, backbone.NumClasses, nil)
	if err := nn.LoadStateDict(model, sd); err != nil {
		return nil, apperr.New(apperr.ErrModelLoad, "classifier.load",
			fmt.Errorf("%s does not match %s: %w", weightsPath, bb.Architecture(), err))
	}

	c := FromModule(bb.Architecture(), model, opts...)
	c.weightsPath = weightsPath
	return c, nil
}

// FromModule wraps an already populated network whose output is
// [N, backbone.NumLevels, backbone.NumClasses].
func FromModule(arch backbone.Architecture, model nn.Module, opts ...Option) *Classifier {
	c := &Classifier{
		arch:      arch,
		model:     model,
		backend:   cpu.New(),
		numParams: nn.NumParameters(model),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Architecture returns the backbone family.
func (c *Classifier) Architecture() backbone.Architecture {
	return c.arch
}

// WeightsPath returns the artifact the weights were loaded from, if any.
func (c *Classifier) WeightsPath() string {
	return c.weightsPath
}

// Backend returns the backend used by Classify.
func (c *Classifier) Backend() tensor.Backend {
	return c.backend
}

// ParameterBytes returns the float32 storage held by the network weights.
func (c *Classifier) ParameterBytes() int64 {
	return int64(c.numParams) * 4
}

// Forward runs the network on b and returns raw logits of shape
// [1, NumLevels, NumClasses]. Passing an autodiff backend records the pass.
func (c *Classifier) Forward(b tensor.Backend, x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := validateInput(x); err != nil {
		return nil, err
	}
	logits := c.model.Forward(b, x)
	want := tensor.Shape{1, backbone.NumLevels, backbone.NumClasses}
	if !logits.Shape().Equal(want) {
		return nil, fmt.Errorf("classifier: network produced %v, expected %v", logits.Shape(), want)
	}
	return logits, nil
}

// Classify runs an untracked forward pass and returns per-level class
// probabilities. x is not modified.
func (c *Classifier) Classify(x *tensor.Tensor) (MultiLevelOutput, error) {
	logits, err := c.Forward(c.backend, x)
	if err != nil {
		return MultiLevelOutput{}, err
	}
	return Softmax(LogitsOf(logits)), nil
}

func validateInput(x *tensor.Tensor) error {
	if x == nil {
		return fmt.Errorf("classifier: nil input")
	}
	shape := x.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 3 {
		return fmt.Errorf("classifier: expected input [1, 3, H, W], got %v", shape)
	}
	return nil
}
