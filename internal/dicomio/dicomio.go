// Package dicomio decodes DICOM slices into normalized 8-bit grayscale
// buffers and writes synthetic DICOM fixtures.
package dicomio

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/born-ml/spinesight/internal/apperr"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// RawImage is a row-major 2-D 8-bit grayscale image.
type RawImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// At returns the sample at column x, row y.
func (r *RawImage) At(x, y int) uint8 {
	return r.Pix[y*r.Width+x]
}

// samples is one decoded frame as floating point luminance.
type samples struct {
	width, height int
	values        []float64
}

// Load reads the first frame of a DICOM file and normalizes it for inference:
// if the largest sample exceeds 255 every sample becomes value/max*255,
// otherwise samples are kept; the result is truncated to uint8. Signed pixel
// data (PixelRepresentation 1) is sign-extended at BitsStored width first, and
// negative samples clamp to zero.
func Load(path string) (*RawImage, error) {
	s, _, err := readFrame(path)
	if err != nil {
		return nil, err
	}

	maxValue := 0.0
	for _, v := range s.values {
		maxValue = math.Max(maxValue, v)
	}

	img := &RawImage{Width: s.width, Height: s.height, Pix: make([]uint8, len(s.values))}
	for i, v := range s.values {
		if v <= 0 {
			continue
		}
		if maxValue > 255 {
			v = v / maxValue * 255
		}
		img.Pix[i] = uint8(math.Min(v, 255))
	}
	return img, nil
}

// LoadDisplay reads the first frame, applies the modality LUT
// (RescaleSlope/RescaleIntercept) and min-max stretches it to [0,255] for
// display. A flat image maps to zeros.
func LoadDisplay(path string) (*RawImage, error) {
	s, ds, err := readFrame(path)
	if err != nil {
		return nil, err
	}

	slope, intercept := 1.0, 0.0
	if v, ok := decimalValue(ds, tag.RescaleSlope); ok {
		slope = v
	}
	if v, ok := decimalValue(ds, tag.RescaleIntercept); ok {
		intercept = v
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range s.values {
		v = v*slope + intercept
		s.values[i] = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	img := &RawImage{Width: s.width, Height: s.height, Pix: make([]uint8, len(s.values))}
	if hi > lo {
		for i, v := range s.values {
			img.Pix[i] = uint8((v - lo) / (hi - lo) * 255)
		}
	}
	return img, nil
}

func readFrame(path string) (*samples, *dicom.Dataset, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, nil, apperr.New(apperr.ErrDecode, "dicom.load", err)
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, nil, apperr.Newf(apperr.ErrDecode, "dicom.load", "%s has no pixel data", path)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, nil, apperr.Newf(apperr.ErrDecode, "dicom.load", "%s has no pixel frames", path)
	}

	// A multi-frame container holding a single slice yields frame 0 as a
	// plain 2-D image.
	s, err := decodeFrame(info.Frames[0], layoutOf(&ds))
	if err != nil {
		return nil, nil, apperr.New(apperr.ErrDecode, "dicom.load", fmt.Errorf("%s: %w", path, err))
	}
	return s, &ds, nil
}

// sampleLayout is the stored sample encoding of the pixel data.
type sampleLayout struct {
	signed     bool
	bitsStored int
}

func layoutOf(ds *dicom.Dataset) sampleLayout {
	var l sampleLayout
	if v, ok := intValue(ds, tag.PixelRepresentation); ok {
		l.signed = v == 1
	}
	if v, ok := intValue(ds, tag.BitsStored); ok {
		l.bitsStored = v
	}
	return l
}

func decodeFrame(f *frame.Frame, layout sampleLayout) (*samples, error) {
	if f.Encapsulated {
		return decodeEncapsulated(f)
	}

	native, err := f.GetNativeFrame()
	if err != nil {
		return nil, err
	}
	rows, cols, spp := native.Rows(), native.Cols(), native.SamplesPerPixel()
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cols, rows)
	}
	if spp <= 0 {
		spp = 1
	}

	data := native.RawDataSlice()
	raw, err := rawFloats(data)
	if err != nil {
		return nil, err
	}
	if layout.signed && isUnsigned(data) {
		bits := layout.bitsStored
		if bits <= 0 || bits > native.BitsPerSample() {
			bits = native.BitsPerSample()
		}
		signExtend(raw, bits)
	}
	if len(raw) < rows*cols*spp {
		return nil, fmt.Errorf("frame holds %d samples, expected %d", len(raw), rows*cols*spp)
	}

	s := &samples{width: cols, height: rows, values: make([]float64, rows*cols)}
	for i := range s.values {
		if spp >= 3 {
			// ITU-R 601-2 luma, samples interleaved per pixel
			px := raw[i*spp : i*spp+3]
			s.values[i] = px[0]*299/1000 + px[1]*587/1000 + px[2]*114/1000
		} else {
			s.values[i] = raw[i*spp]
		}
	}
	return s, nil
}

func rawFloats(data any) ([]float64, error) {
	switch d := data.(type) {
	case []uint8:
		return convert(d), nil
	case []uint16:
		return convert(d), nil
	case []uint32:
		return convert(d), nil
	case []int8:
		return convert(d), nil
	case []int16:
		return convert(d), nil
	case []int32:
		return convert(d), nil
	default:
		return nil, fmt.Errorf("unsupported native sample type %T", data)
	}
}

func isUnsigned(data any) bool {
	switch data.(type) {
	case []uint8, []uint16, []uint32:
		return true
	}
	return false
}

// signExtend reinterprets unsigned samples as two's-complement values of
// the given bit width. Bits above the width are ignored.
func signExtend(values []float64, bits int) {
	if bits <= 0 || bits > 32 {
		return
	}
	mask := uint64(1)<<bits - 1
	sign := uint64(1) << (bits - 1)
	for i, v := range values {
		u := uint64(v) & mask
		if u&sign != 0 {
			values[i] = float64(int64(u) - int64(mask) - 1)
		} else {
			values[i] = float64(u)
		}
	}
}

func convert[T uint8 | uint16 | uint32 | int8 | int16 | int32](src []T) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

func decodeEncapsulated(f *frame.Frame) (*samples, error) {
	img, err := f.GetImage()
	if err != nil {
		return nil, fmt.Errorf("decode encapsulated frame: %w", err)
	}
	b := img.Bounds()
	s := &samples{width: b.Dx(), height: b.Dy(), values: make([]float64, b.Dx()*b.Dy())}
	if s.width == 0 || s.height == 0 {
		return nil, errors.New("encapsulated frame is empty")
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			s.values[(y-b.Min.Y)*s.width+(x-b.Min.X)] = float64(g.Y)
		}
	}
	return s, nil
}

// intValue reads the first value of an integer (US, SS, IS) element.
func intValue(ds *dicom.Dataset, t tag.Tag) (int, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch values := elem.Value.GetValue().(type) {
	case []int:
		if len(values) > 0 {
			return values[0], true
		}
	case []string:
		if len(values) > 0 {
			v, err := strconv.Atoi(strings.TrimSpace(values[0]))
			return v, err == nil
		}
	}
	return 0, false
}

// decimalValue reads the first value of a decimal string (DS) element.
func decimalValue(ds *dicom.Dataset, t tag.Tag) (float64, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
