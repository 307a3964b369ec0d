package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeNotFound, "record missing")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeForbidden))
	})

	t.Run("matches code buried in chain", func(t *testing.T) {
		inner := New(CodeAnchorTimeout, "confirmation deadline exceeded")
		outer := Wrap(inner, CodeEnrollmentFailed, "enrollment aborted")
		assert.True(t, HasCode(outer, CodeEnrollmentFailed))
		assert.True(t, HasCode(outer, CodeAnchorTimeout))
	})

	t.Run("wrapped with fmt.Errorf keeps code visible", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeAnchorInconsistent, "commitment mismatch"))
		assert.True(t, HasCode(err, CodeAnchorInconsistent))
	})

	t.Run("uncoded error has no codes", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("preserves cause for errors.Is", func(t *testing.T) {
		cause := errors.New("pq: connection refused")
		err := Wrap(cause, CodeUnavailable, "store unavailable")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNoEnrollment, CodeOf(New(CodeNoEnrollment, "nothing enrolled")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))

	outer := Wrap(New(CodeNotFound, "inner"), CodeConflict, "outer")
	assert.Equal(t, CodeConflict, CodeOf(outer))
}
