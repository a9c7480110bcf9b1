package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_NumElementsAndStrides(t *testing.T) {
	s := Shape{1, 3, 224, 224}
	assert.Equal(t, 3*224*224, s.NumElements())
	assert.Equal(t, []int{3 * 224 * 224, 224 * 224, 224, 1}, s.ComputeStrides())
	assert.Equal(t, 1, Shape{}.NumElements())
}

func TestShape_Validate(t *testing.T) {
	assert.NoError(t, Shape{2, 3}.Validate())
	assert.Error(t, Shape{2, 0}.Validate())
	assert.Error(t, Shape{-1}.Validate())
}

func TestFromSlice_ShapeMismatch(t *testing.T) {
	_, err := FromSlice([]float32{1, 2, 3}, Shape{2, 2})
	assert.Error(t, err)
}

func TestTensor_AtSet(t *testing.T) {
	x := Zeros(Shape{2, 3})
	x.Set(7, 1, 2)
	assert.Equal(t, float32(7), x.At(1, 2))
	assert.Equal(t, float32(7), x.Data()[5])
	assert.Panics(t, func() { x.At(2, 0) })
}

func TestTensor_ViewSharesData(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{1, 6})
	require.NoError(t, err)

	v, err := x.View(Shape{2, 3})
	require.NoError(t, err)
	v.Set(42, 0, 0)
	assert.Equal(t, float32(42), x.At(0, 0))

	_, err = x.View(Shape{4, 2})
	assert.Error(t, err)
}

func TestTensor_CloneIsDeep(t *testing.T) {
	x, err := FromSlice([]float32{1, 2}, Shape{2})
	require.NoError(t, err)
	x.RequireGrad()

	c := x.Clone()
	c.Data()[0] = 9
	assert.Equal(t, float32(1), x.At(0))
	assert.False(t, c.RequiresGrad())
	assert.True(t, x.Equal(x.Clone()))
	assert.False(t, x.Equal(c))
}

func TestTensor_GradAccumulation(t *testing.T) {
	x := Zeros(Shape{3}).RequireGrad()
	g, err := FromSlice([]float32{1, 2, 3}, Shape{3})
	require.NoError(t, err)

	x.AccumulateGrad(g)
	x.AccumulateGrad(g)
	assert.Equal(t, []float32{2, 4, 6}, x.Grad().Data())
	// Accumulation must not alias the incoming gradient.
	assert.Equal(t, []float32{1, 2, 3}, g.Data())

	x.ZeroGrad()
	assert.Nil(t, x.Grad())
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice("CPU")
	require.NoError(t, err)
	assert.Equal(t, CPU, d)

	d, err = ParseDevice("gpu")
	require.NoError(t, err)
	assert.Equal(t, WebGPU, d)

	_, err = ParseDevice("tpu")
	assert.Error(t, err)
}
