package overlay

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/spinesight/internal/dicomio"
	"github.com/born-ml/spinesight/internal/saliency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampMap(width, height int) *saliency.Map {
	m := &saliency.Map{Width: width, Height: height, Data: make([]float64, width*height)}
	for i := range m.Data {
		m.Data[i] = float64(i) / float64(len(m.Data)-1)
	}
	return m
}

func rampImage(width, height int) *dicomio.RawImage {
	img := &dicomio.RawImage{Width: width, Height: height, Pix: make([]uint8, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Pix[y*width+x] = uint8(50 + (x*150)/width)
		}
	}
	return img
}

func TestRender_ResamplesToRawResolution(t *testing.T) {
	raw := rampImage(512, 384)
	out, err := Render(rampMap(224, 224), raw)
	require.NoError(t, err)

	assert.Equal(t, 512, out.Width)
	assert.Equal(t, 384, out.Height)
	require.Len(t, out.Pix, 512*384*3)
	for _, v := range out.Pix {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestRender_ResampledTintKeepsBlendWeight(t *testing.T) {
	raw := rampImage(300, 200)
	out, err := Render(rampMap(224, 224), raw)
	require.NoError(t, err)

	maxShift := float32(0)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			px := out.At(x, y)
			shift := px[0] - px[1]
			require.GreaterOrEqual(t, shift, float32(-1e-6))
			require.LessOrEqual(t, shift, float32(TintWeight+1e-6))
			maxShift = max(maxShift, shift)
		}
	}
	// The brightest resampled saliency reaches the full blend weight.
	assert.InDelta(t, TintWeight, maxShift, 1e-3)
}

func TestRender_Blend(t *testing.T) {
	raw := &dicomio.RawImage{Width: 2, Height: 1, Pix: []uint8{10, 110}}
	m := &saliency.Map{Width: 2, Height: 1, Data: []float64{1, 0.5}}

	out, err := Render(m, raw)
	require.NoError(t, err)

	// Dark pixel: gray 0 plus a full-strength tint.
	assert.InDelta(t, 0.01, out.At(0, 0)[0], 1e-7)
	assert.Equal(t, float32(0), out.At(0, 0)[1])
	assert.Equal(t, float32(0), out.At(0, 0)[2])

	// Bright pixel: gray 1 saturates instead of overflowing.
	assert.Equal(t, [3]float32{1, 1, 1}, out.At(1, 0))
}

func TestRender_FlatRawImageIsBlack(t *testing.T) {
	raw := &dicomio.RawImage{Width: 3, Height: 3, Pix: []uint8{7, 7, 7, 7, 7, 7, 7, 7, 7}}
	out, err := Render(rampMap(3, 3), raw)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		assert.Equal(t, float32(0), out.Pix[i*3+1])
		assert.LessOrEqual(t, out.Pix[i*3], float32(TintWeight))
	}
}

func TestRender_ZeroMapLeavesGrayscale(t *testing.T) {
	raw := rampImage(40, 30)
	m := &saliency.Map{Width: 16, Height: 16, Data: make([]float64, 256), Degenerate: true}
	out, err := Render(m, raw)
	require.NoError(t, err)
	for i := 0; i < 40*30; i++ {
		assert.Equal(t, out.Pix[i*3+1], out.Pix[i*3])
	}
}

func TestRender_Invalid(t *testing.T) {
	_, err := Render(nil, rampImage(4, 4))
	assert.Error(t, err)
	_, err = Render(&saliency.Map{Width: 2, Height: 2, Data: []float64{1}}, rampImage(4, 4))
	assert.Error(t, err)
	_, err = Render(rampMap(2, 2), &dicomio.RawImage{Width: 4, Height: 4})
	assert.Error(t, err)
}

func TestWritePNG(t *testing.T) {
	out, err := Render(rampMap(8, 8), rampImage(20, 10))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "overlay.png")
	require.NoError(t, out.WritePNG(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 20, decoded.Bounds().Dx())
	assert.Equal(t, 10, decoded.Bounds().Dy())

	rgba := out.RGBA()
	assert.Equal(t, uint8(0xff), rgba.Pix[3])
}
