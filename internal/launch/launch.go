// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package launch is the child side of process creation. Each pipeline stage
// is started as a re-exec of the running binary; the bootstrap applies the
// stage's redirections, resolves the program and replaces its own image.
// Every failure on that path ends the child with ExitCannotLaunch, so a
// setup failure is never mistaken for the program's own exit status and
// never returns into interpreter code.
package launch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"

	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"
)

// Name is the reexec entry point of the bootstrap.
const Name = "osh-launch"

// ExitCannotLaunch is the reserved status of a child that could not start
// its program.
const ExitCannotLaunch = 127

// Spec describes one stage as seen by the child.
type Spec struct {
	Args   []string `json:"args"`
	Input  string   `json:"input,omitempty"`
	Output string   `json:"output,omitempty"`
	Append bool     `json:"append,omitempty"`

	// Foreground makes the child put its own process group in the
	// foreground of the controlling terminal before exec. The parent does
	// the same, so the program never reads the terminal from the
	// background.
	Foreground bool `json:"foreground,omitempty"`
}

func init() {
	reexec.Register(Name, bootstrap)
}

// Command returns an unstarted command that runs spec through the
// bootstrap. The caller sets stdio and SysProcAttr.
func Command(spec Spec) (*exec.Cmd, error) {
	if len(spec.Args) == 0 || spec.Args[0] == "" {
		return nil, errors.New("launch: empty program name")
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("launch: encode spec: %w", err)
	}
	cmd := reexec.Command(Name, string(data))
	// Drop reexec's default Pdeathsig: background jobs must outlive the
	// thread that started them.
	cmd.SysProcAttr = nil
	return cmd, nil
}

func bootstrap() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run prepares and execs the stage. It only returns on failure.
func run(args []string, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "osh: launch: missing stage")
		return ExitCannotLaunch
	}
	var spec Spec
	if err := json.Unmarshal([]byte(args[0]), &spec); err != nil {
		fmt.Fprintf(stderr, "osh: launch: %v\n", err)
		return ExitCannotLaunch
	}
	if len(spec.Args) == 0 || spec.Args[0] == "" {
		fmt.Fprintln(stderr, "osh: launch: empty program name")
		return ExitCannotLaunch
	}

	if spec.Foreground {
		claimTerminal()
	}

	if err := redirect(spec); err != nil {
		fmt.Fprintf(stderr, "osh: %v\n", err)
		return ExitCannotLaunch
	}

	name := spec.Args[0]
	path, err := LookPath(name, os.Getenv("PATH"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			fmt.Fprintf(stderr, "osh: command not found: %s\n", name)
		} else {
			fmt.Fprintf(stderr, "osh: %s: %v\n", name, err)
		}
		return ExitCannotLaunch
	}

	err = unix.Exec(path, spec.Args, os.Environ())
	fmt.Fprintf(stderr, "osh: %s: %v\n", name, err)
	return ExitCannotLaunch
}

// redirect applies the input and output files of spec onto fds 0 and 1.
// Explicit files take precedence over whatever the parent wired there.
func redirect(spec Spec) error {
	if spec.Input != "" {
		f, err := os.Open(spec.Input)
		if err != nil {
			return err
		}
		err = dupOnto(f, unix.Stdin)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", spec.Input, err)
		}
	}

	if spec.Output != "" {
		flags := os.O_WRONLY | os.O_CREATE
		if spec.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(spec.Output, flags, 0644)
		if err != nil {
			return err
		}
		err = dupOnto(f, unix.Stdout)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", spec.Output, err)
		}
	}
	return nil
}

func dupOnto(f *os.File, fd int) error {
	for {
		err := dup2(int(f.Fd()), fd)
		if err != unix.EINTR {
			return err
		}
	}
}

// claimTerminal hands the controlling terminal to the calling process's
// group. Having no controlling terminal is not an error.
func claimTerminal() {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return
	}
	defer tty.Close()
	signal.Ignore(unix.SIGTTOU)
	defer signal.Reset(unix.SIGTTOU)
	_ = unix.IoctlSetPointerInt(int(tty.Fd()), unix.TIOCSPGRP, unix.Getpgrp())
}
