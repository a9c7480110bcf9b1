// Package backbone defines the CNN architectures available to the classifier
// and the registry mapping (architecture, view) pairs to weight artifacts.
package backbone

import (
	"math/rand/v2"
	"strings"

	"github.com/born-ml/spinesight/internal/apperr"
	"github.com/born-ml/spinesight/internal/nn"
	"github.com/born-ml/spinesight/internal/tensor"
)

// Classification geometry.
const (
	NumLevels  = 5
	NumClasses = 3
)

// Levels are the intervertebral levels in output order.
var Levels = [NumLevels]string{"L1/L2", "L2/L3", "L3/L4", "L4/L5", "L5/S1"}

// Classes are the severity grades in output order.
var Classes = [NumClasses]string{"Normal/Mild", "Moderate", "Severe"}

// Architecture identifies a backbone family.
type Architecture string

// Supported architectures.
const (
	AlexNet  Architecture = "alex"
	ResNet18 Architecture = "res"
)

// ParseArchitecture validates an architecture tag.
func ParseArchitecture(s string) (Architecture, error) {
	switch a := Architecture(strings.TrimSpace(s)); a {
	case AlexNet, ResNet18:
		return a, nil
	default:
		return "", apperr.Newf(apperr.ErrInvalidArchitecture, "backbone.parse", "unknown architecture %q (expected %q or %q)", s, AlexNet, ResNet18)
	}
}

// View identifies the MRI acquisition plane/sequence a model was trained on.
type View string

// Supported views. The tag spelling is part of the external interface.
const (
	SagittalT1 View = "saggital1"
	AxialT2    View = "axial"
	SagittalT2 View = "saggital2"
)

// Views lists every supported view in registry order.
var Views = []View{SagittalT1, AxialT2, SagittalT2}

// ParseView validates a view tag.
func ParseView(s string) (View, error) {
	switch v := View(strings.TrimSpace(s)); v {
	case SagittalT1, AxialT2, SagittalT2:
		return v, nil
	default:
		return "", apperr.Newf(apperr.ErrInvalidView, "backbone.parse", "unknown view %q (expected one of %v)", s, Views)
	}
}

// Backbone constructs a network whose output holds numLevels*numClasses
// scores per image, reshaped to [N, numLevels, numClasses].
type Backbone interface {
	Architecture() Architecture

	// Construct builds the network. A nil rng leaves every weight at zero,
	// ready for nn.LoadStateDict; a seeded rng produces Xavier-initialized
	// weights.
	Construct(numLevels, numClasses int, rng *rand.Rand) nn.Module
}

// For returns the backbone of an architecture.
func For(arch Architecture) (Backbone, error) {
	switch arch {
	case AlexNet:
		return alexNet{}, nil
	case ResNet18:
		return resNet{}, nil
	default:
		return nil, apperr.Newf(apperr.ErrInvalidArchitecture, "backbone.for", "unknown architecture %q", arch)
	}
}

// multiLevel wraps a network under the "model." prefix and reshapes its flat
// head output to [N, levels, classes].
type multiLevel struct {
	model      nn.Module
	numLevels  int
	numClasses int
}

func (m *multiLevel) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	out := m.model.Forward(b, input)
	return b.Reshape(out, tensor.Shape{out.Shape()[0], m.numLevels, m.numClasses})
}

func (m *multiLevel) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	nn.PrefixStateDict(sd, "model", m.model.StateDict())
	return sd
}
