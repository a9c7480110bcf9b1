package cpu

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/spinesight/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomTensor(t *testing.T, rng *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

func dot(a, b *tensor.Tensor) float64 {
	var sum float64
	bData := b.Data()
	for i, v := range a.Data() {
		sum += float64(v) * float64(bData[i])
	}
	return sum
}

func TestCPUBackend_Metadata(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
}

func TestAddAndReLU(t *testing.T) {
	backend := New()
	a, _ := tensor.FromSlice([]float32{-1, 2, -3, 4}, tensor.Shape{2, 2})
	b, _ := tensor.FromSlice([]float32{0.5, 0.5, 0.5, 0.5}, tensor.Shape{2, 2})

	sum := backend.Add(a, b)
	assert.Equal(t, []float32{-0.5, 2.5, -2.5, 4.5}, sum.Data())

	relu := backend.ReLU(sum)
	assert.Equal(t, []float32{0, 2.5, 0, 4.5}, relu.Data())

	grad, _ := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{2, 2})
	assert.Equal(t, []float32{0, 1, 0, 1}, backend.ReLUBackward(sum, grad).Data())

	c, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2})
	assert.Panics(t, func() { backend.Add(a, c) })
}

func TestReshape_SharesData(t *testing.T) {
	backend := New()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{1, 6})
	y := backend.Reshape(x, tensor.Shape{2, 3})
	assert.Equal(t, tensor.Shape{2, 3}, y.Shape())
	y.Data()[0] = 42
	assert.Equal(t, float32(42), x.Data()[0])
	assert.Panics(t, func() { backend.Reshape(x, tensor.Shape{4, 2}) })
}

// TestConv2D_BasicForward checks a diagonal 2x2 kernel over a 3x3 image:
//
//	1 2 3
//	4 5 6      1 0
//	7 8 9  *   0 1  ->  6 8 / 12 14
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3})
	kernel, _ := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{1, 1, 2, 2})

	output := backend.Conv2D(input, kernel, nil, tensor.Conv2DParams{Stride: 1})
	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{6, 8, 12, 14}, output.Data())
}

func TestConv2D_PaddingStrideBias(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3})
	kernel, _ := tensor.FromSlice([]float32{1, 1, 1, 1, 1, 1, 1, 1, 1}, tensor.Shape{1, 1, 3, 3})
	bias, _ := tensor.FromSlice([]float32{10}, tensor.Shape{1})

	// out = (3 + 2 - 3)/2 + 1 = 2; each output sums the in-bounds 2x2 corner.
	output := backend.Conv2D(input, kernel, bias, tensor.Conv2DParams{Stride: 2, Padding: 1})
	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{1 + 2 + 4 + 5 + 10, 2 + 3 + 5 + 6 + 10, 4 + 5 + 7 + 8 + 10, 5 + 6 + 8 + 9 + 10}, output.Data())
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := New()
	input := tensor.Zeros(tensor.Shape{1, 2, 4, 4})
	kernel := tensor.Zeros(tensor.Shape{1, 3, 2, 2})
	assert.Panics(t, func() { backend.Conv2D(input, kernel, nil, tensor.Conv2DParams{Stride: 1}) })
}

// The input-gradient kernels of linear operators must be exact adjoints:
// <op(x), g> == <x, opBackward(g)>.
func TestConv2DInputBackward_Adjoint(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewPCG(1, 2))

	for _, p := range []tensor.Conv2DParams{{Stride: 1, Padding: 0}, {Stride: 2, Padding: 1}, {Stride: 4, Padding: 2}} {
		x := randomTensor(t, rng, tensor.Shape{2, 3, 11, 9})
		kernel := randomTensor(t, rng, tensor.Shape{4, 3, 3, 3})
		y := backend.Conv2D(x, kernel, nil, p)
		g := randomTensor(t, rng, y.Shape())

		dx := backend.Conv2DInputBackward(x, kernel, g, p)
		require.Equal(t, x.Shape(), dx.Shape())
		assert.InDelta(t, dot(y, g), dot(x, dx), 1e-3, "params %+v", p)
	}
}

func TestLinear_ForwardAndAdjoint(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3})
	weight, _ := tensor.FromSlice([]float32{1, 0, 0, 0, 1, 1}, tensor.Shape{2, 3})
	bias, _ := tensor.FromSlice([]float32{0.5, -1}, tensor.Shape{2})

	out := backend.Linear(input, weight, bias)
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Equal(t, []float32{1.5, 4}, out.Data())

	rng := rand.New(rand.NewPCG(3, 4))
	x := randomTensor(t, rng, tensor.Shape{3, 7})
	w := randomTensor(t, rng, tensor.Shape{5, 7})
	y := backend.Linear(x, w, nil)
	g := randomTensor(t, rng, y.Shape())
	dx := backend.LinearInputBackward(g, w)
	require.Equal(t, x.Shape(), dx.Shape())
	assert.InDelta(t, dot(y, g), dot(x, dx), 1e-4)
}

func TestMaxPool2D_Forward(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})

	out := backend.MaxPool2D(input, tensor.Pool2DParams{KernelSize: 2, Stride: 2})
	assert.Equal(t, []float32{6, 8, 14, 16}, out.Data())

	// 3x3 window, stride 2, padding 1: (4+2-3)/2+1 = 2
	padded := backend.MaxPool2D(input, tensor.Pool2DParams{KernelSize: 3, Stride: 2, Padding: 1})
	assert.Equal(t, []float32{6, 8, 14, 16}, padded.Data())
}

func TestMaxPool2D_PaddingNeverWins(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{-5, -6, -7, -8}, tensor.Shape{1, 1, 2, 2})
	out := backend.MaxPool2D(input, tensor.Pool2DParams{KernelSize: 3, Stride: 1, Padding: 1})
	assert.Equal(t, []float32{-5, -5, -5, -5}, out.Data())
}

func TestMaxPool2DBackward_RoutesToArgmax(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{
		1, 9, 2, 3,
		4, 5, 6, 7,
		0, 0, 8, 0,
		0, 1, 0, 0,
	}, tensor.Shape{1, 1, 4, 4})
	p := tensor.Pool2DParams{KernelSize: 2, Stride: 2}
	grad, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})

	dx := backend.MaxPool2DBackward(input, grad, p)
	assert.Equal(t, []float32{
		0, 1, 0, 0,
		0, 0, 0, 2,
		0, 0, 4, 0,
		0, 3, 0, 0,
	}, dx.Data())
}

func TestAdaptiveAvgPool2D(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3})

	global := backend.AdaptiveAvgPool2D(input, 1, 1)
	assert.Equal(t, []float32{5}, global.Data())

	// 3 -> 2 uses overlapping bins [0,2) and [1,3).
	out := backend.AdaptiveAvgPool2D(input, 2, 2)
	assert.Equal(t, []float32{3, 4, 6, 7}, out.Data())

	// Upsampling 3 -> 6 replicates values.
	up := backend.AdaptiveAvgPool2D(input, 6, 6)
	assert.Equal(t, float32(1), up.At(0, 0, 0, 1))
	assert.Equal(t, float32(9), up.At(0, 0, 5, 5))
}

func TestAdaptiveAvgPool2DBackward_Adjoint(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewPCG(5, 6))
	for _, size := range [][2]int{{1, 1}, {2, 3}, {6, 6}} {
		x := randomTensor(t, rng, tensor.Shape{1, 2, 5, 4})
		y := backend.AdaptiveAvgPool2D(x, size[0], size[1])
		g := randomTensor(t, rng, y.Shape())
		dx := backend.AdaptiveAvgPool2DBackward(x, g)
		assert.InDelta(t, dot(y, g), dot(x, dx), 1e-4, "output %v", size)
	}
}

func TestChannelAffine(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 2, 1, 2})
	scale, _ := tensor.FromSlice([]float32{2, -1}, tensor.Shape{2})
	shift, _ := tensor.FromSlice([]float32{1, 0}, tensor.Shape{2})

	out := backend.ChannelAffine(input, scale, shift)
	assert.Equal(t, []float32{3, 5, -3, -4}, out.Data())

	grad, _ := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{1, 2, 1, 2})
	assert.Equal(t, []float32{2, 2, -1, -1}, backend.ChannelAffineBackward(grad, scale).Data())
}
