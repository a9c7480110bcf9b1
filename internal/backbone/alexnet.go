package backbone

import (
	"math/rand/v2"

	"github.com/born-ml/spinesight/internal/nn"
	"github.com/born-ml/spinesight/internal/tensor"
)

type alexNet struct{}

func (alexNet) Architecture() Architecture { return AlexNet }

// Construct builds torchvision's AlexNet with the last classifier layer
// replaced by Linear(4096, numLevels*numClasses).
func (alexNet) Construct(numLevels, numClasses int, rng *rand.Rand) nn.Module {
	features := nn.NewSequential(
		nn.NewConv2D(3, 64, 11, 4, 2, true, rng), // 0
		nn.NewReLU(),
		nn.NewMaxPool2D(3, 2, 0),
		nn.NewConv2D(64, 192, 5, 1, 2, true, rng), // 3
		nn.NewReLU(),
		nn.NewMaxPool2D(3, 2, 0),
		nn.NewConv2D(192, 384, 3, 1, 1, true, rng), // 6
		nn.NewReLU(),
		nn.NewConv2D(384, 256, 3, 1, 1, true, rng), // 8
		nn.NewReLU(),
		nn.NewConv2D(256, 256, 3, 1, 1, true, rng), // 10
		nn.NewReLU(),
		nn.NewMaxPool2D(3, 2, 0),
	)
	classifier := nn.NewSequential(
		nn.NewDropout(),
		nn.NewLinear(256*6*6, 4096, rng), // 1
		nn.NewReLU(),
		nn.NewDropout(),
		nn.NewLinear(4096, 4096, rng), // 4
		nn.NewReLU(),
		nn.NewLinear(4096, numLevels*numClasses, rng), // 6
	)

	return &multiLevel{
		model: &alexNetModel{
			features:   features,
			avgpool:    nn.NewAdaptiveAvgPool2D(6, 6),
			flatten:    nn.NewFlatten(),
			classifier: classifier,
		},
		numLevels:  numLevels,
		numClasses: numClasses,
	}
}

type alexNetModel struct {
	features   *nn.Sequential
	avgpool    *nn.AdaptiveAvgPool2D
	flatten    *nn.Flatten
	classifier *nn.Sequential
}

func (m *alexNetModel) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	x := m.features.Forward(b, input)
	x = m.avgpool.Forward(b, x)
	x = m.flatten.Forward(b, x)
	return m.classifier.Forward(b, x)
}

func (m *alexNetModel) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	nn.PrefixStateDict(sd, "features", m.features.StateDict())
	nn.PrefixStateDict(sd, "classifier", m.classifier.StateDict())
	return sd
}
