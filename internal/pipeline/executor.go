// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/marcelocantos/osh/internal/job"
	"github.com/marcelocantos/osh/internal/launch"
	"github.com/marcelocantos/osh/internal/term"
)

// ErrJobDone is returned by Resume for a job whose processes have all
// terminated.
var ErrJobDone = errors.New("job has terminated")

// Terminal is the part of terminal ownership the executor needs.
type Terminal interface {
	Foreground(pgid int) error
	Restore() error
}

// LaunchError reports a failure to create a stage's process. Stages before
// Stage were started and are tracked as a job.
type LaunchError struct {
	Stage int
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch stage %d: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Report describes the outcome of running or resuming a pipeline.
type Report struct {
	Pgid       int
	Pids       []int
	ExitCodes  []int // per stage; 128+signal for signalled or stopped stages
	ExitCode   int   // status of the last stage
	Stopped    bool
	Job        int // job number, 0 if no job was registered
	Background bool
}

// Executor launches pipelines as process groups and waits on foreground
// jobs.
type Executor struct {
	jobs   *job.Table
	term   Terminal
	jobCtl bool
	claim  bool // children also claim the controlling terminal
	stdin  *os.File
	stdout *os.File
	stderr *os.File
	wait   job.WaitFunc
	start  func(*exec.Cmd) error
	log    *zap.SugaredLogger
}

// Option configures an Executor.
type Option func(*Executor)

// WithStdio sets the descriptors stages inherit where no pipe or
// redirection applies.
func WithStdio(in, out, errOut *os.File) Option {
	return func(e *Executor) {
		e.stdin, e.stdout, e.stderr = in, out, errOut
	}
}

// WithLogger sets the logger used for spawn and wait events.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Executor) { e.log = l }
}

// WithWaiter replaces unix.Wait4, for tests.
func WithWaiter(w job.WaitFunc) Option {
	return func(e *Executor) { e.wait = w }
}

// NewExecutor returns an Executor that registers jobs in jobs. A nil or
// term.Detached terminal disables job control: foreground stages then stay
// in the interpreter's process group.
func NewExecutor(jobs *job.Table, t Terminal, opts ...Option) *Executor {
	e := &Executor{
		jobs:   jobs,
		term:   t,
		jobCtl: true,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		wait:   unix.Wait4,
		start:  (*exec.Cmd).Start,
		log:    zap.NewNop().Sugar(),
	}
	if e.term == nil {
		e.term = term.Detached{}
	}
	if _, ok := e.term.(term.Detached); ok {
		e.jobCtl = false
	}
	_, e.claim = e.term.(*term.Terminal)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run launches p. A foreground pipeline is waited for and the terminal is
// taken back before Run returns; a background pipeline is registered as a
// Running job and Run returns at once.
func (e *Executor) Run(p *Pipeline) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	n := len(p.Stages)
	report := &Report{Background: p.Background, ExitCodes: make([]int, n)}
	ownGroup := e.jobCtl || p.Background
	foreground := e.jobCtl && !p.Background

	// pipes[k] carries stage k's stdout to stage k+1's stdin.
	readers := make([]*os.File, n-1)
	writers := make([]*os.File, n-1)
	defer func() {
		for k := range readers {
			closeFile(&readers[k])
			closeFile(&writers[k])
		}
	}()
	for k := range n - 1 {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, &LaunchError{Stage: k + 1, Err: fmt.Errorf("pipe: %w", err)}
		}
		readers[k], writers[k] = r, w
	}

	var launchErr error
	for i, st := range p.Stages {
		cmd, err := launch.Command(launch.Spec{
			Args:       st.Args,
			Input:      st.Input,
			Output:     st.Output,
			Append:     st.Append,
			Foreground: foreground && e.claim,
		})
		if err != nil {
			launchErr = &LaunchError{Stage: i, Err: err}
			break
		}
		cmd.Stdin, cmd.Stdout, cmd.Stderr = e.stdin, e.stdout, e.stderr
		if i > 0 {
			cmd.Stdin = readers[i-1]
		}
		if i < n-1 {
			cmd.Stdout = writers[i]
		}
		if ownGroup {
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: report.Pgid}
		}

		if err := e.start(cmd); err != nil {
			launchErr = &LaunchError{Stage: i, Err: err}
			break
		}
		pid := cmd.Process.Pid
		// Statuses are collected with wait4; the handle is not needed.
		_ = cmd.Process.Release()
		report.Pids = append(report.Pids, pid)
		e.log.Debugw("spawned stage", "stage", i, "pid", pid, "args", st.Args)

		if i == 0 {
			report.Pgid = pid
			if foreground {
				if err := e.term.Foreground(pid); err != nil {
					e.log.Warnw("foreground failed", "pgid", pid, "error", err)
				}
				defer e.restore()
			}
		}

		// The child holds its own copies now.
		if i > 0 {
			closeFile(&readers[i-1])
		}
		if i < n-1 {
			closeFile(&writers[i])
		}
	}

	if launchErr != nil || p.Background {
		for k := range readers {
			closeFile(&readers[k])
			closeFile(&writers[k])
		}
		if len(report.Pids) > 0 {
			report.Job = e.jobs.Add(report.Pgid, p.Text, job.Running, report.Pids...)
		}
		if launchErr != nil {
			e.log.Warnw("launch failed", "line", p.Text, "spawned", len(report.Pids), "error", launchErr)
			return report, launchErr
		}
		e.log.Infow("background job", "job", report.Job, "pgid", report.Pgid, "line", p.Text)
		return report, nil
	}

	live := e.waitMembers(report.Pids, report.ExitCodes)
	report.ExitCode = report.ExitCodes[n-1]
	if len(live) > 0 {
		report.Stopped = true
		report.Job = e.jobs.Add(report.Pgid, p.Text, job.Stopped, live...)
		e.log.Infow("job stopped", "job", report.Job, "pgid", report.Pgid, "live", live)
	}
	e.log.Debugw("pipeline finished", "pgid", report.Pgid, "exit_codes", report.ExitCodes)
	return report, nil
}

// Resume continues the job with process group pgid, in the foreground or
// the background. An unknown pgid returns job.ErrNotFound without touching
// any process or the terminal.
func (e *Executor) Resume(pgid int, foreground bool) (*Report, error) {
	j, ok := e.jobs.Get(pgid)
	if !ok {
		return nil, fmt.Errorf("pgid %d: %w", pgid, job.ErrNotFound)
	}
	members := e.jobs.Members(pgid)
	report := &Report{
		Pgid:       pgid,
		Pids:       members,
		Job:        j.Number,
		Background: !foreground,
	}
	if j.State == job.Done || len(members) == 0 {
		e.jobs.Remove(pgid)
		return report, fmt.Errorf("%%%d: %w", j.Number, ErrJobDone)
	}

	if !foreground {
		if err := e.signal(pgid, members, unix.SIGCONT); err != nil {
			return report, err
		}
		e.jobs.SetState(pgid, job.Running)
		e.log.Infow("job continued", "job", j.Number, "pgid", pgid, "foreground", false)
		return report, nil
	}

	if e.jobCtl {
		if err := e.term.Foreground(pgid); err != nil {
			e.log.Warnw("foreground failed", "pgid", pgid, "error", err)
		}
		defer e.restore()
	}
	if err := e.signal(pgid, members, unix.SIGCONT); err != nil {
		return report, err
	}
	e.jobs.SetState(pgid, job.Running)
	e.log.Infow("job continued", "job", j.Number, "pgid", pgid, "foreground", true)

	report.ExitCodes = make([]int, len(members))
	live := e.waitMembers(members, report.ExitCodes)
	report.ExitCode = report.ExitCodes[len(members)-1]
	if len(live) > 0 {
		report.Stopped = true
		e.jobs.SetStopped(pgid, live...)
		return report, nil
	}
	e.jobs.Remove(pgid)
	return report, nil
}

// waitMembers blocks until every pid has terminated or stopped, storing
// exit codes in codes. It returns the pids that stopped.
func (e *Executor) waitMembers(pids []int, codes []int) []int {
	var live []int
	for i, pid := range pids {
		var ws unix.WaitStatus
		for {
			_, err := e.wait(pid, &ws, unix.WUNTRACED, nil)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				// Nothing left to wait for; the status is lost.
				e.log.Warnw("wait failed", "pid", pid, "error", err)
				ws = 0
			}
			break
		}
		codes[i] = job.ExitCode(ws)
		if ws.Stopped() {
			live = append(live, pid)
		}
		e.log.Debugw("stage changed state", "pid", pid, "code", codes[i], "stopped", ws.Stopped())
	}
	return live
}

func (e *Executor) restore() {
	if err := e.term.Restore(); err != nil {
		e.log.Warnw("restore terminal failed", "error", err)
	}
}

// signal sends sig to the process group, falling back to the individual
// members when the group is not theirs.
func (e *Executor) signal(pgid int, members []int, sig unix.Signal) error {
	err := unix.Kill(-pgid, sig)
	if err != unix.ESRCH {
		return err
	}
	for _, pid := range members {
		if err = unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
			return err
		}
	}
	return nil
}

func closeFile(f **os.File) {
	if *f != nil {
		(*f).Close()
		*f = nil
	}
}
