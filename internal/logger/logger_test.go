package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		log, err := New(mode, "debug")
		require.NoError(t, err, mode)
		assert.NotNil(t, log)
	}
}

func TestNewInvalidMode(t *testing.T) {
	_, err := New("verbose", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging mode")
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New("production", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging level")
}
