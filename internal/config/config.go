// Package config loads service configuration from a tesseracs.yaml file,
// falling back to built-in defaults for every key.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LanguageConfig describes how one language is run inside a sandbox.
type LanguageConfig struct {
	Image      string `mapstructure:"image"`
	Workfile   string `mapstructure:"workfile"`
	RunCommand string `mapstructure:"run_command"`
	PipInstall bool   `mapstructure:"pip_install"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// EngineConfig holds the per-job resource and behavior knobs.
type EngineConfig struct {
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	MemoryMB      int    `mapstructure:"memory_mb"`
	InputTickMS   int    `mapstructure:"input_tick_ms"`
	ArtifactFile  string `mapstructure:"artifact_file"`
	WorkspaceRoot string `mapstructure:"workspace_root"`
	DockerHost    string `mapstructure:"docker_host"`
}

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Engine    EngineConfig              `mapstructure:"engine"`
	Languages map[string]LanguageConfig `mapstructure:"languages"`
}

// Load reads tesseracs.yaml from the working directory or ~/.tesseracs.
// A missing file is fine; defaults cover every key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("tesseracs")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.tesseracs")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("engine.timeout_sec", 60)
	v.SetDefault("engine.memory_mb", 256)
	v.SetDefault("engine.input_tick_ms", 1000)
	v.SetDefault("engine.artifact_file", "plot.png")
	v.SetDefault("engine.workspace_root", "")

	v.SetDefault("languages.python.image", "python:3.11-slim")
	v.SetDefault("languages.python.workfile", "main.py")
	v.SetDefault("languages.python.run_command", "python main.py")
	v.SetDefault("languages.python.pip_install", true)

	v.SetDefault("languages.javascript.image", "node:20-alpine")
	v.SetDefault("languages.javascript.workfile", "main.js")
	v.SetDefault("languages.javascript.run_command", "node main.js")

	v.SetDefault("languages.bash.image", "alpine:3.20")
	v.SetDefault("languages.bash.workfile", "main.sh")
	v.SetDefault("languages.bash.run_command", "sh main.sh")
}

// Timeout returns the per-job wall-clock limit.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

// InputTick returns the awaiting-input heuristic tick.
func (e EngineConfig) InputTick() time.Duration {
	return time.Duration(e.InputTickMS) * time.Millisecond
}

// Language returns the profile for a named language.
func (c *Config) Language(name string) (LanguageConfig, error) {
	lc, ok := c.Languages[name]
	if !ok {
		return LanguageConfig{}, fmt.Errorf("unknown language: %s", name)
	}
	return lc, nil
}
