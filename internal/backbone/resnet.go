package backbone

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/spinesight/internal/nn"
	"github.com/born-ml/spinesight/internal/tensor"
)

type resNet struct{}

func (resNet) Architecture() Architecture { return ResNet18 }

// Construct builds torchvision's ResNet-18 with fc replaced by
// Linear(512, numLevels*numClasses).
func (resNet) Construct(numLevels, numClasses int, rng *rand.Rand) nn.Module {
	m := &resNetModel{
		conv1:   nn.NewConv2D(3, 64, 7, 2, 3, false, rng),
		bn1:     nn.NewBatchNorm2D(64),
		relu:    nn.NewReLU(),
		maxpool: nn.NewMaxPool2D(3, 2, 1),
		avgpool: nn.NewAdaptiveAvgPool2D(1, 1),
		flatten: nn.NewFlatten(),
		fc:      nn.NewLinear(512, numLevels*numClasses, rng),
	}

	inPlanes := 64
	for i, planes := range []int{64, 128, 256, 512} {
		stride := 2
		if i == 0 {
			stride = 1
		}
		m.layers[i] = [2]*basicBlock{
			newBasicBlock(inPlanes, planes, stride, rng),
			newBasicBlock(planes, planes, 1, rng),
		}
		inPlanes = planes
	}

	return &multiLevel{model: m, numLevels: numLevels, numClasses: numClasses}
}

type resNetModel struct {
	conv1   *nn.Conv2D
	bn1     *nn.BatchNorm2D
	relu    *nn.ReLU
	maxpool *nn.MaxPool2D
	layers  [4][2]*basicBlock
	avgpool *nn.AdaptiveAvgPool2D
	flatten *nn.Flatten
	fc      *nn.Linear
}

func (m *resNetModel) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	x := m.conv1.Forward(b, input)
	x = m.bn1.Forward(b, x)
	x = m.relu.Forward(b, x)
	x = m.maxpool.Forward(b, x)
	for _, layer := range m.layers {
		for _, block := range layer {
			x = block.Forward(b, x)
		}
	}
	x = m.avgpool.Forward(b, x)
	x = m.flatten.Forward(b, x)
	return m.fc.Forward(b, x)
}

func (m *resNetModel) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	nn.PrefixStateDict(sd, "conv1", m.conv1.StateDict())
	nn.PrefixStateDict(sd, "bn1", m.bn1.StateDict())
	for i, layer := range m.layers {
		for j, block := range layer {
			nn.PrefixStateDict(sd, fmt.Sprintf("layer%d.%d", i+1, j), block.StateDict())
		}
	}
	nn.PrefixStateDict(sd, "fc", m.fc.StateDict())
	return sd
}

// basicBlock is the two-convolution residual block of ResNet-18/34.
// A 1x1 projection ("downsample") matches the shortcut when the block
// changes resolution or width.
type basicBlock struct {
	conv1      *nn.Conv2D
	bn1        *nn.BatchNorm2D
	conv2      *nn.Conv2D
	bn2        *nn.BatchNorm2D
	relu       *nn.ReLU
	downsample *nn.Sequential
}

func newBasicBlock(inPlanes, planes, stride int, rng *rand.Rand) *basicBlock {
	block := &basicBlock{
		conv1: nn.NewConv2D(inPlanes, planes, 3, stride, 1, false, rng),
		bn1:   nn.NewBatchNorm2D(planes),
		conv2: nn.NewConv2D(planes, planes, 3, 1, 1, false, rng),
		bn2:   nn.NewBatchNorm2D(planes),
		relu:  nn.NewReLU(),
	}
	if stride != 1 || inPlanes != planes {
		block.downsample = nn.NewSequential(
			nn.NewConv2D(inPlanes, planes, 1, stride, 0, false, rng),
			nn.NewBatchNorm2D(planes),
		)
	}
	return block
}

func (bb *basicBlock) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	out := bb.conv1.Forward(b, input)
	out = bb.bn1.Forward(b, out)
	out = bb.relu.Forward(b, out)
	out = bb.conv2.Forward(b, out)
	out = bb.bn2.Forward(b, out)

	identity := input
	if bb.downsample != nil {
		identity = bb.downsample.Forward(b, input)
	}
	return bb.relu.Forward(b, b.Add(out, identity))
}

func (bb *basicBlock) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	nn.PrefixStateDict(sd, "conv1", bb.conv1.StateDict())
	nn.PrefixStateDict(sd, "bn1", bb.bn1.StateDict())
	nn.PrefixStateDict(sd, "conv2", bb.conv2.StateDict())
	nn.PrefixStateDict(sd, "bn2", bb.bn2.StateDict())
	if bb.downsample != nil {
		nn.PrefixStateDict(sd, "downsample", bb.downsample.StateDict())
	}
	return sd
}
