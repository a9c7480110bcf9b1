package cpu

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/tensor"
)

// ChannelAffine computes out[n,c,h,w] = input[n,c,h,w]*scale[c] + shift[c].
func (cpu *CPUBackend) ChannelAffine(input, scale, shift *tensor.Tensor) *tensor.Tensor {
	n, c, h, w := input.Shape().NCHW()
	if scale.NumElements() != c || shift.NumElements() != c {
		panic(fmt.Sprintf("channel affine: expected %d channels, got scale=%d shift=%d",
			c, scale.NumElements(), shift.NumElements()))
	}

	output := cpu.alloc("channel affine", input.Shape())
	inputData := input.Data()
	outputData := output.Data()
	scaleData := scale.Data()
	shiftData := shift.Data()
	hw := h * w

	for nc := 0; nc < n*c; nc++ {
		s, b := scaleData[nc%c], shiftData[nc%c]
		src := inputData[nc*hw : (nc+1)*hw]
		dst := outputData[nc*hw : (nc+1)*hw]
		for i, v := range src {
			dst[i] = v*s + b
		}
	}

	return output
}

// ChannelAffineBackward computes grad[n,c,h,w]*scale[c].
func (cpu *CPUBackend) ChannelAffineBackward(grad, scale *tensor.Tensor) *tensor.Tensor {
	n, c, h, w := grad.Shape().NCHW()
	inputGrad := cpu.alloc("channel affine backward", grad.Shape())
	gradData := grad.Data()
	inputGradData := inputGrad.Data()
	scaleData := scale.Data()
	hw := h * w

	for nc := 0; nc < n*c; nc++ {
		s := scaleData[nc%c]
		src := gradData[nc*hw : (nc+1)*hw]
		dst := inputGradData[nc*hw : (nc+1)*hw]
		for i, v := range src {
			dst[i] = v * s
		}
	}

	return inputGrad
}
