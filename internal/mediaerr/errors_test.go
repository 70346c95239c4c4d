package mediaerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"missing", fmt.Errorf("segment 2: %w", ErrInputMissing), CodeInputMissing},
		{"unprobeable", fmt.Errorf("probe: %w", ErrUnprobeableMedia), CodeUnprobeableMedia},
		{"encode", fmt.Errorf("overlay: %w", ErrEncodeFailure), CodeEncodeFailure},
		{"validation", fmt.Errorf("concat: %w", ErrOutputValidation), CodeOutputValidation},
		{"same path", fmt.Errorf("mix: %w", ErrSameInputOutput), CodeSameInputOutput},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), CodeCancelled},
		{"other", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestCode_MissingWinsOverUnprobeable(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrUnprobeableMedia, ErrInputMissing)
	assert.Equal(t, CodeInputMissing, Code(err))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(fmt.Errorf("x: %w", ErrInputMissing)))
	assert.False(t, Retryable(fmt.Errorf("x: %w", ErrUnprobeableMedia)))
	assert.False(t, Retryable(fmt.Errorf("x: %w", ErrSameInputOutput)))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(fmt.Errorf("x: %w", ErrEncodeFailure)))
	assert.True(t, Retryable(fmt.Errorf("x: %w", ErrOutputValidation)))
}
