package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/spinesight/internal/tensor"
)

// Conv2D is a 2D convolutional layer.
//
// Performs convolution: output = Conv2D(input, weight) + bias
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
type Conv2D struct {
	inChannels int
	params     tensor.Conv2DParams

	weight *Parameter // [out_channels, in_channels, kernel, kernel]
	bias   *Parameter // [out_channels] or nil
}

// NewConv2D creates a new 2D convolutional layer with Xavier initialization.
//
// Parameters:
//   - inChannels: Number of input channels
//   - outChannels: Number of output channels (number of filters)
//   - kernel: Square kernel size
//   - stride: Stride for convolution
//   - padding: Zero padding applied to every border
//   - useBias: Whether to include a bias term (ResNet convolutions have none)
//   - rng: Initialization source, nil for zeros
func NewConv2D(inChannels, outChannels, kernel, stride, padding int, useBias bool, rng *rand.Rand) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernel <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %d", kernel))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}

	fanIn := inChannels * kernel * kernel
	fanOut := outChannels * kernel * kernel
	weight := Xavier(fanIn, fanOut, tensor.Shape{outChannels, inChannels, kernel, kernel}, rng)

	var bias *Parameter
	if useBias {
		bias = NewParameter("bias", tensor.Zeros(tensor.Shape{outChannels}))
	}

	return &Conv2D{
		inChannels: inChannels,
		params:     tensor.Conv2DParams{Stride: stride, Padding: padding},
		weight:     NewParameter("weight", weight),
		bias:       bias,
	}
}

// Forward performs the convolution.
func (c *Conv2D) Forward(b tensor.Backend, input *tensor.Tensor) *tensor.Tensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	var bias *tensor.Tensor
	if c.bias != nil {
		bias = c.bias.Tensor()
	}
	return b.Conv2D(input, c.weight.Tensor(), bias, c.params)
}

// Weight returns the kernel parameter.
func (c *Conv2D) Weight() *Parameter {
	return c.weight
}

// StateDict returns weight and, if present, bias.
func (c *Conv2D) StateDict() map[string]*tensor.Tensor {
	return stateDict(c.weight, c.bias)
}
