package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Logging.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, 60*time.Second, cfg.Engine.Timeout())
	assert.Equal(t, time.Second, cfg.Engine.InputTick())
	assert.Equal(t, 256, cfg.Engine.MemoryMB)
	assert.Equal(t, "plot.png", cfg.Engine.ArtifactFile)
}

func TestLoadDefaultLanguages(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	py, err := cfg.Language("python")
	require.NoError(t, err)
	assert.Equal(t, "python:3.11-slim", py.Image)
	assert.Equal(t, "main.py", py.Workfile)
	assert.Equal(t, "python main.py", py.RunCommand)
	assert.True(t, py.PipInstall)

	js, err := cfg.Language("javascript")
	require.NoError(t, err)
	assert.Equal(t, "node:20-alpine", js.Image)
	assert.False(t, js.PipInstall)

	sh, err := cfg.Language("bash")
	require.NoError(t, err)
	assert.Equal(t, "alpine:3.20", sh.Image)
}

func TestLanguageUnknown(t *testing.T) {
	cfg := &Config{Languages: map[string]LanguageConfig{}}
	_, err := cfg.Language("cobol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown language")
}
