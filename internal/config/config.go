// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config holds the global osh configuration.
type Config struct {
	Prompt string      `yaml:"prompt"`
	Color  string      `yaml:"color" validate:"oneof=auto always never"`
	Jobs   JobsConfig  `yaml:"jobs"`
	Log    LogConfig   `yaml:"log"`
	Audit  AuditConfig `yaml:"audit"`
}

// JobsConfig controls job bookkeeping.
type JobsConfig struct {
	// ReapDone removes a Done job once it has been reported.
	ReapDone bool `yaml:"reap_done"`
	// Notify prints Done jobs before the next prompt.
	Notify bool `yaml:"notify"`
}

// LogConfig controls the diagnostic log. An empty path disables it.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// AuditConfig controls the audit log of launched pipelines.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Prompt: "osh> ",
		Color:  ColorAuto,
		Jobs: JobsConfig{
			ReapDone: true,
			Notify:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    filepath.Join(home, ".local", "share", "osh", "audit.jsonl"),
		},
	}
}

// Load reads the config from the standard location (~/.config/osh/config.yaml).
// If the file doesn't exist, returns the default config.
func Load() (*Config, error) {
	return LoadFrom(afero.NewOsFs(), ConfigPath())
}

// LoadFrom reads the config at path from fsys.
func LoadFrom(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Log.Path = expandHome(cfg.Log.Path)
	cfg.Audit.Path = expandHome(cfg.Audit.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate the configuration for basic semantic errors. Field names in
// errors are the YAML keys.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})
	return validate.Struct(c)
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "osh", "config.yaml")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}
