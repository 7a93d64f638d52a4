// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the interpreter's diagnostic logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/marcelocantos/osh/internal/config"
)

// New returns a logger writing JSON lines to cfg.Path at cfg.Level or
// above. With no path it returns a logger that discards everything; the
// terminal belongs to the user and their jobs.
func New(cfg config.LogConfig) (*zap.SugaredLogger, error) {
	if cfg.Path == "" {
		return zap.NewNop().Sugar(), nil
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	atom, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = atom
	zc.OutputPaths = []string{cfg.Path}
	zc.ErrorOutputPaths = []string{cfg.Path}
	zc.InitialFields = map[string]any{"pid": os.Getpid()}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
