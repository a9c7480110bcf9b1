// Package apperr defines the error kinds surfaced by the inference pipeline.
//
// Callers test for a kind with errors.Is; the concrete *Error adds the failing
// operation and the underlying cause.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrDecode              = errors.New("unreadable or malformed DICOM")
	ErrInvalidArchitecture = errors.New("invalid architecture")
	ErrInvalidView         = errors.New("invalid view")
	ErrModelLoad           = errors.New("model weights missing or incompatible")
	ErrDegenerateSaliency  = errors.New("saliency map has zero range")
)

// Error carries an error kind together with the operation that failed.
type Error struct {
	Kind error  // One of the Err* kinds above
	Op   string // Operation that failed (e.g. "dicom.load", "registry.resolve")
	Err  error  // Underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// New creates an *Error of the given kind.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an *Error whose cause is a formatted message.
func Newf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
