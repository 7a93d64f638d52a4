// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"errors"
	"fmt"

	"github.com/marcelocantos/osh/internal/job"
	"github.com/marcelocantos/osh/internal/pipeline"
)

type Fg struct{}

var _ Builtin = (*Fg)(nil)

func (f *Fg) Name() string        { return "fg" }
func (f *Fg) Description() string { return "continue a job in the foreground" }

func (f *Fg) Run(sh Shell, args []string) int {
	cmd := &command{Use: "fg [%N|N]", Short: f.Description()}
	return cmd.Run(sh, args, func(operands []string) int {
		return resume(sh, "fg", operands, true)
	})
}

type Bg struct{}

var _ Builtin = (*Bg)(nil)

func (b *Bg) Name() string        { return "bg" }
func (b *Bg) Description() string { return "continue a stopped job in the background" }

func (b *Bg) Run(sh Shell, args []string) int {
	cmd := &command{Use: "bg [%N|N]", Short: b.Description()}
	return cmd.Run(sh, args, func(operands []string) int {
		return resume(sh, "bg", operands, false)
	})
}

func resume(sh Shell, name string, operands []string, foreground bool) int {
	sh.Drain()
	j, ok := resolveJob(sh, name, operands)
	if !ok {
		return 1
	}

	if foreground {
		fmt.Fprintln(sh.Stdout(), j.Text)
	} else {
		fmt.Fprintf(sh.Stdout(), "[%d] %s &\n", j.Number, j.Text)
	}

	r, err := sh.Resume(j.Pgid, foreground)
	switch {
	case errors.Is(err, job.ErrNotFound):
		fmt.Fprintf(sh.Stderr(), "osh: %s: %%%d: no such job\n", name, j.Number)
		return 1
	case errors.Is(err, pipeline.ErrJobDone):
		fmt.Fprintf(sh.Stderr(), "osh: %s: %%%d: job has terminated\n", name, j.Number)
		return 1
	case err != nil:
		fmt.Fprintf(sh.Stderr(), "osh: %s: %v\n", name, err)
		return 1
	}

	if r.Stopped {
		if stopped, ok := sh.Jobs().Get(j.Pgid); ok {
			fmt.Fprintln(sh.Stderr(), Notice(stopped))
		}
	}
	if foreground {
		return r.ExitCode
	}
	return 0
}
