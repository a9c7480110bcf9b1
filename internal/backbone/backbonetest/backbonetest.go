// Package backbonetest provides a small backbone and weight fixtures for tests.
package backbonetest

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/born-ml/spinesight/internal/backbone"
	"github.com/born-ml/spinesight/internal/loader"
	"github.com/born-ml/spinesight/internal/nn"
	"github.com/born-ml/spinesight/internal/tensor"
	"github.com/stretchr/testify/require"
)

// Tiny is a four-layer CNN with the same input and output contract as the
// production backbones. It reports itself as ResNet18 so it can stand in for
// a registry entry.
type Tiny struct{}

// Architecture implements backbone.Backbone.
func (Tiny) Architecture() backbone.Architecture { return backbone.ResNet18 }

// Construct implements backbone.Backbone.
func (Tiny) Construct(numLevels, numClasses int, rng *rand.Rand) nn.Module {
	return &tinyNet{
		body: nn.NewSequential(
			nn.NewConv2D(3, 4, 5, 4, 2, true, rng),
			nn.NewBatchNorm2D(4),
			nn.NewReLU(),
			nn.NewMaxPool2D(3, 2, 1),
			nn.NewAdaptiveAvgPool2D(3, 3),
			nn.NewFlatten(),
			nn.NewLinear(4*3*3, numLevels*numClasses, rng),
		),
		numLevels:  numLevels,
		numClasses: numClasses,
	}
}

type tinyNet struct {
	body       *nn.Sequential
	numLevels  int
	numClasses int
}

func (n *tinyNet) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	out := n.body.Forward(b, input)
	return b.Reshape(out, tensor.Shape{out.Shape()[0], n.numLevels, n.numClasses})
}

func (n *tinyNet) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	nn.PrefixStateDict(sd, "model", n.body.StateDict())
	return sd
}

// Model returns a seeded, randomly initialized network of bb.
func Model(bb backbone.Backbone, seed uint64) nn.Module {
	return bb.Construct(backbone.NumLevels, backbone.NumClasses, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// WriteWeights writes a seeded network of bb to dir/name and returns the path.
func WriteWeights(t testing.TB, bb backbone.Backbone, seed uint64, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, loader.WriteFile(path, Model(bb, seed).StateDict(), map[string]string{
		"architecture": string(bb.Architecture()),
	}))
	return path
}

// Input returns a deterministic [1, 3, size, size] tensor in [0, 1] with
// identical channels.
func Input(size int) *tensor.Tensor {
	x := tensor.Zeros(tensor.Shape{1, 3, size, size})
	data := x.Data()
	plane := size * size
	for y := 0; y < size; y++ {
		for xx := 0; xx < size; xx++ {
			v := float32((xx*7+y*13)%size) / float32(size)
			for c := 0; c < 3; c++ {
				data[c*plane+y*size+xx] = v
			}
		}
	}
	return x
}
