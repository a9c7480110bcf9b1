package cpu

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2DInputBackward computes the gradient w.r.t. the convolution input
// (transposed convolution).
//
// Per batch item:
//
//	colGrad [C_in*K_h*K_w, H_out*W_out] = kernel^T @ grad [C_out, H_out*W_out]
//	inputGrad = col2im(colGrad)
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.Tensor, p tensor.Conv2DParams) *tensor.Tensor {
	n, cIn, h, w := input.Shape().NCHW()
	cOut, _, kH, kW := kernel.Shape().NCHW()
	gn, gc, hOut, wOut := grad.Shape().NCHW()

	if gn != n || gc != cOut {
		panic(fmt.Sprintf("conv2d backward: grad shape %v incompatible with input %v and kernel %v",
			grad.Shape(), input.Shape(), kernel.Shape()))
	}

	inputGrad := cpu.alloc("conv2d backward", input.Shape())

	colRows := cIn * kH * kW
	colCols := hOut * wOut
	colGrad := make([]float32, colRows*colCols)
	kernelMat := blas32.General{Rows: cOut, Cols: colRows, Stride: colRows, Data: kernel.Data()}
	colMat := blas32.General{Rows: colRows, Cols: colCols, Stride: colCols, Data: colGrad}

	gradData := grad.Data()
	inputGradData := inputGrad.Data()
	plane := cIn * h * w

	for batch := 0; batch < n; batch++ {
		g := gradData[batch*cOut*colCols : (batch+1)*cOut*colCols]
		blas32.Gemm(blas.Trans, blas.NoTrans, 1, kernelMat,
			blas32.General{Rows: cOut, Cols: colCols, Stride: colCols, Data: g}, 0, colMat)

		col2im(inputGradData[batch*plane:(batch+1)*plane], colGrad, cIn, h, w, kH, kW, hOut, wOut, p)
	}

	return inputGrad
}
