package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/spinesight/internal/tensor"
)

// MaxPool2D performs 2D max pooling over an NCHW tensor.
//
// Positions in the zero padding never win a window; the first maximum in
// row-major window order does.
//
// Output size: out = (in + 2*padding - kernel) / stride + 1.
func (cpu *CPUBackend) MaxPool2D(input *tensor.Tensor, p tensor.Pool2DParams) *tensor.Tensor {
	n, c, h, w := input.Shape().NCHW()
	hOut, wOut := poolOutputSize(h, w, p)
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid output dimensions: out_h=%d, out_w=%d", hOut, wOut))
	}

	output := cpu.alloc("maxpool2d", tensor.Shape{n, c, hOut, wOut})
	inputData := input.Data()
	outputData := output.Data()

	for nc := 0; nc < n*c; nc++ {
		plane := inputData[nc*h*w : (nc+1)*h*w]
		out := outputData[nc*hOut*wOut : (nc+1)*hOut*wOut]
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				idx := argmaxWindow(plane, h, w, oh, ow, p)
				out[oh*wOut+ow] = plane[idx]
			}
		}
	}

	return output
}

// MaxPool2DBackward routes each output gradient to the input position that
// produced the window maximum. The argmax is recomputed from input.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.Tensor, p tensor.Pool2DParams) *tensor.Tensor {
	n, c, h, w := input.Shape().NCHW()
	_, _, hOut, wOut := grad.Shape().NCHW()

	inputGrad := cpu.alloc("maxpool2d backward", input.Shape())
	inputData := input.Data()
	gradData := grad.Data()
	inputGradData := inputGrad.Data()

	for nc := 0; nc < n*c; nc++ {
		plane := inputData[nc*h*w : (nc+1)*h*w]
		g := gradData[nc*hOut*wOut : (nc+1)*hOut*wOut]
		dst := inputGradData[nc*h*w : (nc+1)*h*w]
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				dst[argmaxWindow(plane, h, w, oh, ow, p)] += g[oh*wOut+ow]
			}
		}
	}

	return inputGrad
}

func poolOutputSize(h, w int, p tensor.Pool2DParams) (int, int) {
	return (h+2*p.Padding-p.KernelSize)/p.Stride + 1, (w+2*p.Padding-p.KernelSize)/p.Stride + 1
}

// argmaxWindow returns the flat index within plane of the maximum of the
// pooling window for output (oh, ow).
func argmaxWindow(plane []float32, h, w, oh, ow int, p tensor.Pool2DParams) int {
	best := -1
	bestVal := float32(math.Inf(-1))
	for kh := 0; kh < p.KernelSize; kh++ {
		ih := oh*p.Stride - p.Padding + kh
		if ih < 0 || ih >= h {
			continue
		}
		for kw := 0; kw < p.KernelSize; kw++ {
			iw := ow*p.Stride - p.Padding + kw
			if iw < 0 || iw >= w {
				continue
			}
			if v := plane[ih*w+iw]; best < 0 || v > bestVal {
				best = ih*w + iw
				bestVal = v
			}
		}
	}
	if best < 0 {
		panic(fmt.Sprintf("maxpool2d: window (%d,%d) lies entirely in padding", oh, ow))
	}
	return best
}

// AdaptiveAvgPool2D averages input bins so the spatial output is outH x outW.
// Bin i along an axis of size L spans [floor(i*L/out), ceil((i+1)*L/out)).
func (cpu *CPUBackend) AdaptiveAvgPool2D(input *tensor.Tensor, outH, outW int) *tensor.Tensor {
	n, c, h, w := input.Shape().NCHW()
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("adaptive avgpool2d: invalid output size %dx%d", outH, outW))
	}

	output := cpu.alloc("adaptive avgpool2d", tensor.Shape{n, c, outH, outW})
	inputData := input.Data()
	outputData := output.Data()

	for nc := 0; nc < n*c; nc++ {
		plane := inputData[nc*h*w : (nc+1)*h*w]
		out := outputData[nc*outH*outW : (nc+1)*outH*outW]
		for oh := 0; oh < outH; oh++ {
			h0, h1 := adaptiveBin(oh, h, outH)
			for ow := 0; ow < outW; ow++ {
				w0, w1 := adaptiveBin(ow, w, outW)
				var sum float32
				for ih := h0; ih < h1; ih++ {
					for iw := w0; iw < w1; iw++ {
						sum += plane[ih*w+iw]
					}
				}
				out[oh*outW+ow] = sum / float32((h1-h0)*(w1-w0))
			}
		}
	}

	return output
}

// AdaptiveAvgPool2DBackward spreads each output gradient evenly over its bin.
func (cpu *CPUBackend) AdaptiveAvgPool2DBackward(input, grad *tensor.Tensor) *tensor.Tensor {
	n, c, h, w := input.Shape().NCHW()
	_, _, outH, outW := grad.Shape().NCHW()

	inputGrad := cpu.alloc("adaptive avgpool2d backward", input.Shape())
	gradData := grad.Data()
	inputGradData := inputGrad.Data()

	for nc := 0; nc < n*c; nc++ {
		g := gradData[nc*outH*outW : (nc+1)*outH*outW]
		dst := inputGradData[nc*h*w : (nc+1)*h*w]
		for oh := 0; oh < outH; oh++ {
			h0, h1 := adaptiveBin(oh, h, outH)
			for ow := 0; ow < outW; ow++ {
				w0, w1 := adaptiveBin(ow, w, outW)
				share := g[oh*outW+ow] / float32((h1-h0)*(w1-w0))
				for ih := h0; ih < h1; ih++ {
					for iw := w0; iw < w1; iw++ {
						dst[ih*w+iw] += share
					}
				}
			}
		}
	}

	return inputGrad
}

func adaptiveBin(i, in, out int) (start, end int) {
	start = i * in / out
	end = ((i+1)*in + out - 1) / out
	return start, end
}
