package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeValidation, "bad field")
		outer := Wrap(inner, CodeExecutionFailed, "body failed")
		assert.Equal(t, CodeExecutionFailed, CodeOf(outer))
		assert.True(t, HasCode(outer, CodeValidation))
		assert.True(t, Is(outer, CodeExecutionFailed))
		assert.False(t, Is(outer, CodeValidation))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, Is(nil, CodeInternal))
	})

	t.Run("fmt wrapping keeps the code visible", func(t *testing.T) {
		err := fmt.Errorf("guard: %w", New(CodeUnauthorized, "missing permission"))
		assert.Equal(t, CodeUnauthorized, CodeOf(err))
	})
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "append failed")
	assert.Equal(t, "internal_error: append failed: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
}
