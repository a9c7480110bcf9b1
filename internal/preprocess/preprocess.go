// Package preprocess converts decoded slices into backbone input tensors.
package preprocess

import (
	"fmt"
	"image"

	"github.com/born-ml/spinesight/internal/dicomio"
	"github.com/born-ml/spinesight/internal/tensor"
	"golang.org/x/image/draw"
)

// Input geometry expected by the backbones.
const (
	Size     = 224
	Channels = 3
)

// Preprocess resizes raw to Size x Size with bilinear interpolation,
// replicates the grayscale plane into Channels identical channels and scales
// samples to [0,1]. The result has shape [1, Channels, Size, Size].
// Identical input always yields a bit-identical tensor.
func Preprocess(raw *dicomio.RawImage) (*tensor.Tensor, error) {
	if raw == nil || raw.Width <= 0 || raw.Height <= 0 {
		return nil, fmt.Errorf("preprocess: empty image")
	}
	if len(raw.Pix) != raw.Width*raw.Height {
		return nil, fmt.Errorf("preprocess: %dx%d image has %d samples", raw.Width, raw.Height, len(raw.Pix))
	}

	src := &image.Gray{Pix: raw.Pix, Stride: raw.Width, Rect: image.Rect(0, 0, raw.Width, raw.Height)}
	dst := image.NewGray(image.Rect(0, 0, Size, Size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := tensor.Zeros(tensor.Shape{1, Channels, Size, Size})
	data := out.Data()
	plane := Size * Size
	for i, v := range dst.Pix {
		f := float32(v) / 255
		for c := 0; c < Channels; c++ {
			data[c*plane+i] = f
		}
	}
	return out, nil
}
