package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsKindAndCause(t *testing.T) {
	err := New(ErrDecode, "dicom.load", fs.ErrNotExist)

	assert.True(t, errors.Is(err, ErrDecode))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, errors.Is(err, ErrModelLoad))
	assert.Equal(t, "dicom.load: unreadable or malformed DICOM: file does not exist", err.Error())
}

func TestError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("classify stage: %w", Newf(ErrInvalidView, "registry.resolve", "unknown view %q", "coronal"))

	var appErr *Error
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "registry.resolve", appErr.Op)
	assert.ErrorIs(t, err, ErrInvalidView)
	assert.Contains(t, err.Error(), `unknown view "coronal"`)
}

func TestError_NilCause(t *testing.T) {
	err := New(ErrDegenerateSaliency, "saliency.explain", nil)
	assert.Equal(t, "saliency.explain: saliency map has zero range", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}
