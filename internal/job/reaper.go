// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// WaitFunc has the signature of unix.Wait4.
type WaitFunc func(pid int, status *unix.WaitStatus, options int, rusage *unix.Rusage) (int, error)

// Reaper reconciles child state changes into a Table.
//
// Notify may be called from any goroutine (typically a SIGCHLD watcher).
// Drain must only be called from the interpreter's main control flow, at a
// point where no foreground wait is in progress, otherwise it would collect
// statuses the executor is waiting for.
type Reaper struct {
	jobs    *Table
	wait    WaitFunc
	log     *zap.SugaredLogger
	pending atomic.Bool
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithWaiter replaces unix.Wait4, for tests.
func WithWaiter(w WaitFunc) ReaperOption {
	return func(r *Reaper) { r.wait = w }
}

// WithLogger sets the logger used for reap events.
func WithLogger(l *zap.SugaredLogger) ReaperOption {
	return func(r *Reaper) { r.log = l }
}

// NewReaper returns a Reaper that updates jobs.
func NewReaper(jobs *Table, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		jobs: jobs,
		wait: unix.Wait4,
		log:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify records that at least one child may have changed state.
func (r *Reaper) Notify() {
	r.pending.Store(true)
}

// Pending reports whether Notify ran since the last drain.
func (r *Reaper) Pending() bool {
	return r.pending.Load()
}

// DrainIfPending drains only when a change has been signalled.
func (r *Reaper) DrainIfPending() int {
	if !r.pending.Load() {
		return 0
	}
	return r.Drain()
}

// Drain collects every outstanding child state change without blocking and
// applies it to the table. It returns the number of changes collected.
func (r *Reaper) Drain() int {
	// Clear first so a notification arriving mid-drain is not lost.
	r.pending.Store(false)

	n := 0
	for {
		var ws unix.WaitStatus
		pid, err := r.wait(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			// ECHILD: no children left.
			return n
		}
		n++

		ev, ok := eventOf(ws)
		if !ok {
			continue
		}
		j, owned := r.jobs.Observe(pid, ev)
		if !owned {
			r.log.Debugw("reaped untracked child", "pid", pid)
			continue
		}
		r.log.Debugw("job state changed", "pid", pid, "job", j.Number, "pgid", j.Pgid, "state", j.State.String())
	}
}

func eventOf(ws unix.WaitStatus) (Event, bool) {
	switch {
	case ws.Exited(), ws.Signaled():
		return Exited, true
	case ws.Stopped():
		return Suspended, true
	case ws.Continued():
		return Continued, true
	default:
		return 0, false
	}
}

// ExitCode converts a terminated wait status to a shell exit code:
// the exit status, or 128 plus the signal number.
func ExitCode(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	case ws.Stopped():
		return 128 + int(ws.StopSignal())
	default:
		return 0
	}
}
