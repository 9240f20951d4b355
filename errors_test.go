package nbat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeError(t *testing.T) {
	inner := errors.New("git ls-files failed")
	err := NewRuntimeError(inner)

	assert.True(t, IsRuntimeError(err))
	assert.False(t, IsTestFailureError(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "runtime error")

	// Detection survives wrapping.
	wrapped := fmt.Errorf("failed to run: %w", err)
	assert.True(t, IsRuntimeError(wrapped))
}

func TestTestFailureError(t *testing.T) {
	err := NewTestFailureError("2 notebooks failed")

	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))
	assert.Contains(t, err.Error(), "2 notebooks failed")

	wrapped := fmt.Errorf("run: %w", err)
	assert.True(t, IsTestFailureError(wrapped))
}

func TestNilErrors(t *testing.T) {
	require.False(t, IsRuntimeError(nil))
	require.False(t, IsTestFailureError(nil))
}
