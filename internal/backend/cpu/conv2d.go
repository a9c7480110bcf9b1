package cpu

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Bias shape:   [C_out] or nil
// Output shape: [N, C_out, H_out, W_out]
//
// For each batch item the input patches are unrolled into a column matrix
// [C_in*K_h*K_w, H_out*W_out] and multiplied by the kernel viewed as
// [C_out, C_in*K_h*K_w]. The product is already laid out as [C_out, H_out, W_out].
func (cpu *CPUBackend) Conv2D(input, kernel, bias *tensor.Tensor, p tensor.Conv2DParams) *tensor.Tensor {
	n, cIn, h, w := input.Shape().NCHW()
	cOut, cInK, kH, kW := kernel.Shape().NCHW()

	if cIn != cInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", cIn, cInK))
	}
	hOut, wOut := convOutputSize(h, w, kH, kW, p)
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", hOut, wOut))
	}
	if bias != nil && bias.NumElements() != cOut {
		panic(fmt.Sprintf("conv2d: bias has %d elements, expected %d", bias.NumElements(), cOut))
	}

	output := cpu.alloc("conv2d", tensor.Shape{n, cOut, hOut, wOut})

	colRows := cIn * kH * kW
	colCols := hOut * wOut
	col := make([]float32, colRows*colCols)
	kernelMat := blas32.General{Rows: cOut, Cols: colRows, Stride: colRows, Data: kernel.Data()}
	colMat := blas32.General{Rows: colRows, Cols: colCols, Stride: colCols, Data: col}

	inputData := input.Data()
	outputData := output.Data()
	plane := cIn * h * w

	for batch := 0; batch < n; batch++ {
		im2col(col, inputData[batch*plane:(batch+1)*plane], cIn, h, w, kH, kW, hOut, wOut, p)

		out := outputData[batch*cOut*colCols : (batch+1)*cOut*colCols]
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, kernelMat, colMat, 0,
			blas32.General{Rows: cOut, Cols: colCols, Stride: colCols, Data: out})

		if bias != nil {
			for c, b := range bias.Data() {
				row := out[c*colCols : (c+1)*colCols]
				for i := range row {
					row[i] += b
				}
			}
		}
	}

	return output
}

// convOutputSize computes out = (in + 2*padding - kernel) / stride + 1 per axis.
func convOutputSize(h, w, kH, kW int, p tensor.Conv2DParams) (int, int) {
	return (h+2*p.Padding-kH)/p.Stride + 1, (w+2*p.Padding-kW)/p.Stride + 1
}

// im2col unrolls one [C, H, W] image into col [C*K_h*K_w, H_out*W_out].
// Row r = (c*K_h + kh)*K_w + kw matches the kernel's row-major layout.
func im2col(col, img []float32, c, h, w, kH, kW, hOut, wOut int, p tensor.Conv2DParams) {
	colCols := hOut * wOut
	for ch := 0; ch < c; ch++ {
		for kh := 0; kh < kH; kh++ {
			for kw := 0; kw < kW; kw++ {
				row := col[((ch*kH+kh)*kW+kw)*colCols:][:colCols]
				for oh := 0; oh < hOut; oh++ {
					ih := oh*p.Stride - p.Padding + kh
					dst := row[oh*wOut : (oh+1)*wOut]
					if ih < 0 || ih >= h {
						for i := range dst {
							dst[i] = 0
						}
						continue
					}
					src := img[(ch*h+ih)*w : (ch*h+ih+1)*w]
					for ow := range dst {
						iw := ow*p.Stride - p.Padding + kw
						if iw >= 0 && iw < w {
							dst[ow] = src[iw]
						} else {
							dst[ow] = 0
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it scatter-adds col back into img.
func col2im(img, col []float32, c, h, w, kH, kW, hOut, wOut int, p tensor.Conv2DParams) {
	colCols := hOut * wOut
	for ch := 0; ch < c; ch++ {
		for kh := 0; kh < kH; kh++ {
			for kw := 0; kw < kW; kw++ {
				row := col[((ch*kH+kh)*kW+kw)*colCols:][:colCols]
				for oh := 0; oh < hOut; oh++ {
					ih := oh*p.Stride - p.Padding + kh
					if ih < 0 || ih >= h {
						continue
					}
					dst := img[(ch*h+ih)*w : (ch*h+ih+1)*w]
					src := row[oh*wOut : (oh+1)*wOut]
					for ow, v := range src {
						iw := ow*p.Stride - p.Padding + kw
						if iw >= 0 && iw < w {
							dst[iw] += v
						}
					}
				}
			}
		}
	}
}
