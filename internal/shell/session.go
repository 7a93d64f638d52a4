// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"io"
	"os"

	"github.com/marcelocantos/osh/internal/builtin"
	"github.com/marcelocantos/osh/internal/pipeline"
)

// session is the view of the interpreter a builtin runs against. out is
// the builtin's stdout after redirection.
type session struct {
	*Shell
	out io.Writer
}

var _ builtin.Shell = (*session)(nil)

func (s *session) Resume(pgid int, foreground bool) (*pipeline.Report, error) {
	return s.exec.Resume(pgid, foreground)
}

func (s *session) Drain()                      { s.reaper.Drain() }
func (s *session) ReapDone() bool              { return s.cfg.Jobs.ReapDone }
func (s *session) Stdout() io.Writer           { return s.out }
func (s *session) Stderr() io.Writer           { return s.stderr }
func (s *session) Getenv(key string) string    { return os.Getenv(key) }
func (s *session) Registry() *builtin.Registry { return s.reg }

func (s *session) Chdir(dir string) error {
	if err := os.Chdir(dir); err != nil {
		return err
	}
	if wd, err := os.Getwd(); err == nil {
		os.Setenv("PWD", wd)
	}
	return nil
}

func (s *session) Exit(code int) {
	s.exiting = true
	s.exitCode = code
}
