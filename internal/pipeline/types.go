// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPipeline is returned for a pipeline with no stages.
	ErrEmptyPipeline = errors.New("empty pipeline")
	// ErrEmptyStage is returned for a stage with no program name.
	ErrEmptyStage = errors.New("empty command")
	// ErrUnsupported is returned by Parse for shell syntax the interpreter
	// does not implement.
	ErrUnsupported = errors.New("unsupported syntax")
)

// Stage is a single command in a pipeline.
type Stage struct {
	Args   []string // program name followed by its arguments
	Input  string   // file for stdin, empty if none
	Output string   // file for stdout, empty if none
	Append bool     // append to Output instead of truncating it
}

// Pipeline is one or more stages connected stdout to stdin, left to right.
type Pipeline struct {
	Stages     []Stage
	Background bool
	Text       string // display text for job listings
}

// Validate checks the pipeline can be launched. It must pass before any
// process is created.
func (p *Pipeline) Validate() error {
	if p == nil || len(p.Stages) == 0 {
		return ErrEmptyPipeline
	}
	for i, s := range p.Stages {
		if len(s.Args) == 0 || s.Args[0] == "" {
			return fmt.Errorf("stage %d: %w", i, ErrEmptyStage)
		}
	}
	return nil
}
