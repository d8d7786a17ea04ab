package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetLoggerIsCached(t *testing.T) {
	resetForTesting()
	defer resetForTesting()

	a := GetLogger("graph")
	b := GetLogger("graph")
	assert.Same(t, a, b)
}

func TestUpdateLogLevelsExplicitAndDefault(t *testing.T) {
	resetForTesting()
	defer resetForTesting()

	buffer := GetLogger("buffer")
	require.NoError(t, UpdateLogLevels("buffer:error;.:debug"))

	assert.Equal(t, zapcore.ErrorLevel, buffer.level)

	// a module created after the default was set should inherit it.
	graph := GetLogger("graph")
	assert.Equal(t, zapcore.DebugLevel, graph.level)
}

func TestParseLevelUnknownDefaultsToInfo(t *testing.T) {
	level, ok := parseLevel("not-a-level")
	assert.False(t, ok)
	assert.Equal(t, zapcore.InfoLevel, level)
}
