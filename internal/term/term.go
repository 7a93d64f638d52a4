// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package term manages ownership of the controlling terminal: which process
// group is in the foreground and the saved terminal modes the interpreter
// returns to after every foreground job.
package term

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNotTerminal is returned by Open for a file that is not a tty.
var ErrNotTerminal = errors.New("not a terminal")

// Terminal is the interpreter's controlling terminal.
type Terminal struct {
	mu    sync.Mutex
	fd    int
	pgid  int
	saved *unix.Termios
}

// Open wraps f, which must refer to a terminal.
func Open(f *os.File) (*Terminal, error) {
	fd := int(f.Fd())
	if _, err := unix.IoctlGetTermios(fd, ioctlReadTermios); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), ErrNotTerminal)
	}
	return &Terminal{fd: fd, pgid: unix.Getpgrp()}, nil
}

// Init puts the interpreter in a process group of its own, claims the
// terminal for that group and saves the terminal modes Restore will
// reinstate.
func (t *Terminal) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pid := unix.Getpid()
	if unix.Getpgrp() != pid {
		// EPERM means we are a session leader, which is already a group
		// leader.
		if err := unix.Setpgid(0, 0); err != nil && err != unix.EPERM {
			return fmt.Errorf("setpgid: %w", err)
		}
	}
	t.pgid = unix.Getpgrp()

	if err := withoutTTOU(func() error { return setForeground(t.fd, t.pgid) }); err != nil {
		return fmt.Errorf("claim terminal: %w", err)
	}

	termios, err := unix.IoctlGetTermios(t.fd, ioctlReadTermios)
	if err != nil {
		return fmt.Errorf("save terminal modes: %w", err)
	}
	t.saved = termios
	return nil
}

// Foreground hands the terminal to pgid.
func (t *Terminal) Foreground(pgid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := setForeground(t.fd, pgid); err != nil {
		return fmt.Errorf("foreground %d: %w", pgid, err)
	}
	return nil
}

// Restore takes the terminal back for the interpreter's group and
// reinstates the saved modes, which a stopped or crashed job may have
// changed.
func (t *Terminal) Restore() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return withoutTTOU(func() error {
		if err := setForeground(t.fd, t.pgid); err != nil {
			return fmt.Errorf("restore terminal: %w", err)
		}
		if t.saved == nil {
			return nil
		}
		if err := unix.IoctlSetTermios(t.fd, ioctlWriteTermios, t.saved); err != nil {
			return fmt.Errorf("restore terminal modes: %w", err)
		}
		return nil
	})
}

// Owner reports the process group currently in the foreground.
func (t *Terminal) Owner() (int, error) {
	return unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
}

// Pgid is the interpreter's own process group.
func (t *Terminal) Pgid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pgid
}

func setForeground(fd, pgid int) error {
	for {
		err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid)
		if err != unix.EINTR {
			return err
		}
	}
}

// withoutTTOU runs fn with SIGTTOU ignored. A background group writing
// terminal attributes is otherwise stopped by the kernel, and a caught
// SIGTTOU makes the ioctl fail with EINTR forever.
func withoutTTOU(fn func() error) error {
	signal.Ignore(unix.SIGTTOU)
	defer signal.Reset(unix.SIGTTOU)
	return fn()
}

// Detached stands in for a terminal when there is none or job control is
// off. Every operation succeeds without effect.
type Detached struct{}

func (Detached) Foreground(int) error { return nil }
func (Detached) Restore() error       { return nil }
