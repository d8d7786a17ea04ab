package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestACSErrorIsMatchesByKind(t *testing.T) {
	a := New(KindNotFound, "entity 5 not found")
	b := New(KindNotFound, "")
	assert.True(t, errors.Is(a, b))

	c := New(KindCycleError, "")
	assert.False(t, errors.Is(a, c))
}

func TestRetriable(t *testing.T) {
	assert.True(t, New(KindBufferFull, "full").Retriable())
	assert.True(t, New(KindDeadlineExceeded, "slow").Retriable())
	assert.False(t, New(KindCycleError, "cyclic").Retriable())
}

func TestAsACSErrorWrapsPlainErrors(t *testing.T) {
	plain := errors.New("boom")
	wrapped := AsACSError(plain)
	assert.Equal(t, KindInternal, wrapped.Kind)

	already := New(KindNotFound, "x")
	assert.Same(t, already, AsACSError(already))
}
