package dicomio

import (
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SyntheticOptions controls WriteSynthetic.
type SyntheticOptions struct {
	// MaxValue is the largest stored sample (defaults to 4095, a 12-bit MR range).
	MaxValue uint16
	// RescaleSlope and RescaleIntercept are written when RescaleSlope != 0.
	RescaleSlope     float64
	RescaleIntercept float64
}

// WriteSynthetic writes a single-frame 16-bit MONOCHROME2 MR slice with a
// deterministic diagonal gradient: sample(x, y) = (x + y) * MaxValue / (w + h - 2).
func WriteSynthetic(path string, width, height int, opts SyntheticOptions) error {
	if width < 2 || height < 2 {
		return fmt.Errorf("synthetic image must be at least 2x2, got %dx%d", width, height)
	}
	if opts.MaxValue == 0 {
		opts.MaxValue = 4095
	}

	pixels := width * height
	nativeFrame := frame.NewNativeFrame[uint16](16, height, width, pixels, 1)
	span := width + height - 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			nativeFrame.RawData[y*width+x] = uint16((x + y) * int(opts.MaxValue) / span)
		}
	}

	pixelDataInfo := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	}

	const (
		mrImageStorage = "1.2.840.10008.5.1.4.1.1.4"
		instanceUID    = "1.2.826.0.1.3680043.8.498.1"
	)
	elements := []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{mrImageStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{instanceUID}),
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.SOPClassUID, []string{mrImageStorage}),
		mustNewElement(tag.SOPInstanceUID, []string{instanceUID}),
		mustNewElement(tag.Modality, []string{"MR"}),
		mustNewElement(tag.BodyPartExamined, []string{"LSPINE"}),
		mustNewElement(tag.Rows, []int{height}),
		mustNewElement(tag.Columns, []int{width}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{16}),
		mustNewElement(tag.HighBit, []int{15}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
	}
	if opts.RescaleSlope != 0 {
		elements = append(elements,
			mustNewElement(tag.RescaleSlope, []string{fmt.Sprintf("%g", opts.RescaleSlope)}),
			mustNewElement(tag.RescaleIntercept, []string{fmt.Sprintf("%g", opts.RescaleIntercept)}),
		)
	}
	elements = append(elements, mustNewElement(tag.PixelData, pixelDataInfo))

	return writeDatasetToFile(path, dicom.Dataset{Elements: elements})
}

func mustNewElement(t tag.Tag, data any) *dicom.Element {
	elem, err := dicom.NewElement(t, data)
	if err != nil {
		panic(fmt.Sprintf("dicom element %v: %v", t, err))
	}
	return elem
}

// writeDatasetToFile writes a DICOM dataset to a file.
func writeDatasetToFile(filename string, ds dicom.Dataset) (err error) {
	//nolint:gosec // G304: output path is chosen by the caller
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return dicom.Write(f, ds)
}
