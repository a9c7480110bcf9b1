package cpu

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear computes input @ weight^T + bias.
//
// Input shape:  [N, in]
// Weight shape: [out, in]
// Bias shape:   [out] or nil
// Output shape: [N, out]
func (cpu *CPUBackend) Linear(input, weight, bias *tensor.Tensor) *tensor.Tensor {
	inShape, wShape := input.Shape(), weight.Shape()
	if len(inShape) != 2 || len(wShape) != 2 {
		panic(fmt.Sprintf("linear: expected 2D input and weight, got %v and %v", inShape, wShape))
	}
	n, in := inShape[0], inShape[1]
	out := wShape[0]
	if wShape[1] != in {
		panic(fmt.Sprintf("linear: input features %d != weight features %d", in, wShape[1]))
	}

	output := cpu.alloc("linear", tensor.Shape{n, out})
	outputData := output.Data()

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: n, Cols: in, Stride: in, Data: input.Data()},
		blas32.General{Rows: out, Cols: in, Stride: in, Data: weight.Data()},
		0,
		blas32.General{Rows: n, Cols: out, Stride: out, Data: outputData})

	if bias != nil {
		if bias.NumElements() != out {
			panic(fmt.Sprintf("linear: bias has %d elements, expected %d", bias.NumElements(), out))
		}
		biasData := bias.Data()
		for row := 0; row < n; row++ {
			dst := outputData[row*out : (row+1)*out]
			for j := range dst {
				dst[j] += biasData[j]
			}
		}
	}

	return output
}

// LinearInputBackward computes grad @ weight for grad [N, out] and weight [out, in].
func (cpu *CPUBackend) LinearInputBackward(grad, weight *tensor.Tensor) *tensor.Tensor {
	n, out := grad.Shape()[0], grad.Shape()[1]
	in := weight.Shape()[1]

	inputGrad := cpu.alloc("linear backward", tensor.Shape{n, in})
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: n, Cols: out, Stride: out, Data: grad.Data()},
		blas32.General{Rows: out, Cols: in, Stride: in, Data: weight.Data()},
		0,
		blas32.General{Rows: n, Cols: in, Stride: in, Data: inputGrad.Data()})

	return inputGrad
}
