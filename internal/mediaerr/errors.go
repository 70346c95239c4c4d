// Package mediaerr defines the failure taxonomy shared by every composition
// pipeline. Packages wrap these sentinels with fmt.Errorf("...: %w") so callers
// classify failures with errors.Is regardless of where they originated.
package mediaerr

import (
	"context"
	"errors"
)

var (
	// ErrInputMissing is returned when a required input file does not exist or is
	// too small to be a usable media file.
	ErrInputMissing = errors.New("input missing")
	// ErrUnprobeableMedia is returned when metadata cannot be read from a file or
	// the file carries no video stream.
	ErrUnprobeableMedia = errors.New("unprobeable media")
	// ErrInvalidPlacement marks an overlay request whose placements all fall
	// outside the base video. It degrades to passthrough and is only logged.
	ErrInvalidPlacement = errors.New("invalid placement configuration")
	// ErrEncodeFailure is returned when the external engine exits non-zero.
	ErrEncodeFailure = errors.New("encode failure")
	// ErrOutputValidation is returned when a produced file is missing or undersized.
	ErrOutputValidation = errors.New("output validation failure")
	// ErrSameInputOutput is returned when an output path names one of the
	// inputs. Nothing is run or removed.
	ErrSameInputOutput = errors.New("output would overwrite an input")
)

// Stable error codes exposed by the HTTP and CLI surfaces.
const (
	CodeInputMissing     = "INPUT_MISSING"
	CodeUnprobeableMedia = "UNPROBEABLE_MEDIA"
	CodeEncodeFailure    = "ENCODE_FAILURE"
	CodeOutputValidation = "OUTPUT_VALIDATION_FAILURE"
	CodeSameInputOutput  = "OUTPUT_OVERWRITES_INPUT"
	CodeCancelled        = "CANCELLED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Code maps err onto one of the stable error codes.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputMissing):
		return CodeInputMissing
	case errors.Is(err, ErrUnprobeableMedia):
		return CodeUnprobeableMedia
	case errors.Is(err, ErrSameInputOutput):
		return CodeSameInputOutput
	case errors.Is(err, ErrOutputValidation):
		return CodeOutputValidation
	case errors.Is(err, ErrEncodeFailure):
		return CodeEncodeFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

// Retryable reports whether a failure may succeed on a fresh attempt.
// Missing inputs, unprobeable media, an output aliasing an input and
// cancellation never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInputMissing),
		errors.Is(err, ErrUnprobeableMedia),
		errors.Is(err, ErrSameInputOutput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
