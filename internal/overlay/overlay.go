// Package overlay composites a saliency map onto the native-resolution slice
// as a faint red tint.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/born-ml/spinesight/internal/dicomio"
	"github.com/born-ml/spinesight/internal/saliency"
	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/floats"
)

// TintWeight is the mixing weight of the red saliency channel.
const TintWeight = 0.01

// Image is a 3-channel float image in row-major HWC order with values in [0,1].
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

// At returns the RGB triple at column x, row y.
func (img *Image) At(x, y int) [3]float32 {
	i := (y*img.Width + x) * 3
	return [3]float32{img.Pix[i], img.Pix[i+1], img.Pix[i+2]}
}

// Render blends m into raw. The saliency map is resampled to the raw
// resolution when the shapes differ, raw is min-max normalized (a flat image
// becomes black) and each pixel becomes
//
//	(gray + TintWeight*saliency, gray, gray)
//
// clamped to [0,1].
func Render(m *saliency.Map, raw *dicomio.RawImage) (*Image, error) {
	if m == nil || raw == nil {
		return nil, fmt.Errorf("overlay: nil input")
	}
	if len(m.Data) != m.Width*m.Height || m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("overlay: malformed %dx%d saliency map with %d values", m.Width, m.Height, len(m.Data))
	}
	if len(raw.Pix) != raw.Width*raw.Height || raw.Width <= 0 || raw.Height <= 0 {
		return nil, fmt.Errorf("overlay: malformed %dx%d image with %d samples", raw.Width, raw.Height, len(raw.Pix))
	}

	tint := m.Data
	if m.Width != raw.Width || m.Height != raw.Height {
		tint = resample(m, raw.Width, raw.Height)
	}
	gray := normalizeRaw(raw.Pix)

	out := &Image{Width: raw.Width, Height: raw.Height, Pix: make([]float32, len(gray)*3)}
	for i, g := range gray {
		out.Pix[i*3] = float32(clamp01(g + TintWeight*tint[i]))
		out.Pix[i*3+1] = float32(g)
		out.Pix[i*3+2] = float32(g)
	}
	return out, nil
}

// resample rescales the map to [0,1], quantizes it to 8 bits, resizes it
// with bicubic interpolation and maps it back to [0,1].
func resample(m *saliency.Map, width, height int) []float64 {
	lo, hi := floats.Min(m.Data), floats.Max(m.Data)
	src := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	if hi > lo {
		for i, v := range m.Data {
			src.Pix[i] = uint8((v - lo) / (hi - lo) * 255)
		}
	}

	//nolint:gosec // G115: dimensions come from decoded images
	resized := resize.Resize(uint(width), uint(height), src, resize.Bicubic)

	out := make([]float64, width*height)
	b := resized.Bounds()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.GrayModel.Convert(resized.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			out[y*width+x] = float64(g.Y) / 255
		}
	}
	return out
}

func normalizeRaw(pix []uint8) []float64 {
	out := make([]float64, len(pix))
	lo, hi := uint8(255), uint8(0)
	for _, v := range pix {
		lo, hi = min(lo, v), max(hi, v)
	}
	if hi == lo {
		return out
	}
	span := float64(hi - lo)
	for i, v := range pix {
		out[i] = float64(v-lo) / span
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// RGBA converts the image to 8-bit RGBA for display.
func (img *Image) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i := 0; i < img.Width*img.Height; i++ {
		out.Pix[i*4] = to8(img.Pix[i*3])
		out.Pix[i*4+1] = to8(img.Pix[i*3+1])
		out.Pix[i*4+2] = to8(img.Pix[i*3+2])
		out.Pix[i*4+3] = 0xff
	}
	return out
}

func to8(v float32) uint8 {
	return uint8(math.Round(clamp01(float64(v)) * 255))
}

// EncodePNG writes the image as PNG.
func (img *Image) EncodePNG(w io.Writer) error {
	return png.Encode(w, img.RGBA())
}

// WritePNG writes the image to path as PNG.
func (img *Image) WritePNG(path string) (err error) {
	//nolint:gosec // G304: output path is chosen by the caller
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return img.EncodePNG(f)
}
