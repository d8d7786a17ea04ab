package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	ResetConfig()
	defer ResetConfig()

	assert.Equal(t, 10000, VConfig.GetInt(BufferCapacity))
	assert.Equal(t, 0.8, VConfig.GetFloat64(BufferHighWatermark))
	assert.Equal(t, "sqlite", VConfig.GetString(DatabaseDriver))
}

func TestEnvOverrideWinsOverDefault(t *testing.T) {
	require.NoError(t, os.Setenv("ACS_BUFFER_CAPACITY", "42"))
	defer os.Unsetenv("ACS_BUFFER_CAPACITY")

	ResetConfig()
	defer ResetConfig()

	assert.Equal(t, 42, VConfig.GetInt(BufferCapacity))
}

func TestLoadIsIdempotent(t *testing.T) {
	ResetConfig()
	defer ResetConfig()

	require.NoError(t, Load())
	require.NoError(t, Load())
}
