// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package shell is the interpreter's read-eval loop. It owns the job table,
// the reaper and the executor for one session.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/marcelocantos/osh/internal/audit"
	"github.com/marcelocantos/osh/internal/builtin"
	"github.com/marcelocantos/osh/internal/config"
	"github.com/marcelocantos/osh/internal/job"
	"github.com/marcelocantos/osh/internal/pipeline"
	"github.com/marcelocantos/osh/internal/term"
)

// Shell is one interpreter session.
type Shell struct {
	cfg      *config.Config
	jobs     *job.Table
	reaper   *job.Reaper
	exec     *pipeline.Executor
	reg      *builtin.Registry
	term     pipeline.Terminal
	audit    *audit.Logger
	log      *zap.SugaredLogger
	stdin    *os.File
	stdout   *os.File
	stderr   *os.File
	colors   palette
	signals  chan os.Signal
	reported map[int]job.State // last state announced, by job number

	interactive bool
	last        int
	exitCode    int
	exiting     bool
}

// Option configures a Shell.
type Option func(*Shell)

// WithStdio sets the interpreter's input and the descriptors jobs inherit.
func WithStdio(in, out, errOut *os.File) Option {
	return func(s *Shell) {
		s.stdin, s.stdout, s.stderr = in, out, errOut
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Shell) { s.log = l }
}

// WithAudit records every launched pipeline in l.
func WithAudit(l *audit.Logger) Option {
	return func(s *Shell) { s.audit = l }
}

// WithTerminal enables job control on t.
func WithTerminal(t pipeline.Terminal) Option {
	return func(s *Shell) { s.term = t }
}

// WithInteractive makes Run print prompts.
func WithInteractive(interactive bool) Option {
	return func(s *Shell) { s.interactive = interactive }
}

// New builds a session from cfg. Close releases it.
func New(cfg *config.Config, opts ...Option) (*Shell, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	s := &Shell{
		cfg:      cfg,
		jobs:     job.NewTable(),
		reg:      builtin.NewRegistry(),
		term:     term.Detached{},
		log:      zap.NewNop().Sugar(),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		reported: make(map[int]job.State),
	}
	for _, opt := range opts {
		opt(s)
	}
	builtin.RegisterAll(s.reg)

	s.reaper = job.NewReaper(s.jobs, job.WithLogger(s.log))
	s.exec = pipeline.NewExecutor(s.jobs, s.term,
		pipeline.WithStdio(s.stdin, s.stdout, s.stderr),
		pipeline.WithLogger(s.log),
	)
	s.colors = newPalette(cfg.Color, s.interactive)
	s.watchSignals()
	return s, nil
}

// watchSignals shields the interpreter from keyboard interrupts and turns
// SIGCHLD into a pending reap. Signals that are caught rather than ignored
// revert to their default action in the programs the interpreter starts.
func (s *Shell) watchSignals() {
	s.signals = make(chan os.Signal, 16)
	signal.Notify(s.signals, unix.SIGINT, unix.SIGTSTP, unix.SIGCHLD)
	go func(ch <-chan os.Signal) {
		for sig := range ch {
			if sig == unix.SIGCHLD {
				s.reaper.Notify()
			}
		}
	}(s.signals)
}

// Close tears the session down. Jobs still running are left alone.
func (s *Shell) Close() error {
	signal.Stop(s.signals)
	close(s.signals)
	s.jobs.Clear()
	_ = s.log.Sync()
	return nil
}

// Run reads and executes lines until end of input or exit. It returns the
// interpreter's exit status.
func (s *Shell) Run() int {
	in := bufio.NewReader(byteReader{s.stdin})
	for !s.exiting {
		s.safePoint()
		if s.interactive {
			fmt.Fprint(s.stdout, s.colors.prompt.Sprint(s.cfg.Prompt))
		}

		line, err := in.ReadString('\n')
		if line != "" {
			s.RunLine(strings.TrimSuffix(line, "\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintf(s.stderr, "osh: read: %v\n", err)
				s.last = 1
			} else if s.interactive {
				fmt.Fprintln(s.stdout)
			}
			break
		}
	}
	return s.Status()
}

// RunLine executes one line and returns its status. Problems are reported
// on stderr; none of them end the session.
func (s *Shell) RunLine(line string) int {
	p, err := pipeline.Parse(line)
	if errors.Is(err, pipeline.ErrEmptyPipeline) {
		return s.last
	}
	if err != nil {
		fmt.Fprintf(s.stderr, "osh: %v\n", err)
		s.last = 2
		return s.last
	}

	if len(p.Stages) == 1 {
		if b, err := s.reg.Lookup(p.Stages[0].Args[0]); err == nil {
			s.last = s.runBuiltin(b, p.Stages[0])
			return s.last
		}
	}

	start := time.Now()
	r, err := s.exec.Run(p)
	s.record(line, p, r, err, time.Since(start))

	if err != nil {
		fmt.Fprintf(s.stderr, "osh: %v\n", err)
		if r != nil && r.Job > 0 {
			s.reported[r.Job] = job.Running
			fmt.Fprintf(s.stderr, "[%d] %d\n", r.Job, r.Pgid)
		}
		s.last = 1
		return s.last
	}

	switch {
	case r.Background:
		s.reported[r.Job] = job.Running
		fmt.Fprintf(s.stderr, "[%d] %d\n", r.Job, r.Pgid)
		s.last = 0
	case r.Stopped:
		if j, ok := s.jobs.Get(r.Pgid); ok {
			s.reported[j.Number] = job.Stopped
			fmt.Fprintln(s.stderr, s.colors.notice(j))
		}
		s.last = r.ExitCode
	default:
		s.last = r.ExitCode
	}
	return s.last
}

// runBuiltin runs b in process. An output redirection applies to the
// builtin's stdout; input is ignored since no builtin reads it.
func (s *Shell) runBuiltin(b builtin.Builtin, st pipeline.Stage) int {
	var out io.Writer = s.stdout
	if st.Output != "" {
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if st.Append {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(st.Output, flags, 0644)
		if err != nil {
			fmt.Fprintf(s.stderr, "osh: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}
	s.log.Debugw("builtin", "name", b.Name(), "args", st.Args)
	return b.Run(&session{Shell: s, out: out}, st.Args)
}

// safePoint collects child state changes and announces jobs that stopped
// or finished in the background. It only runs while no foreground job is
// being waited for.
func (s *Shell) safePoint() {
	s.reaper.DrainIfPending()

	all := s.jobs.List()
	present := make(map[int]bool, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		j := all[i]
		present[j.Number] = true
		if s.reported[j.Number] == j.State {
			continue
		}
		s.reported[j.Number] = j.State
		if j.State == job.Running || (j.State == job.Done && !s.cfg.Jobs.Notify) {
			continue
		}
		fmt.Fprintln(s.stderr, s.colors.notice(j))
	}
	for n := range s.reported {
		if !present[n] {
			delete(s.reported, n)
		}
	}

	if s.cfg.Jobs.ReapDone {
		for _, j := range s.jobs.RemoveDone() {
			delete(s.reported, j.Number)
		}
	}
}

func (s *Shell) record(line string, p *pipeline.Pipeline, r *pipeline.Report, err error, d time.Duration) {
	if s.audit == nil {
		return
	}
	e := audit.Entry{
		Line:       strings.TrimSpace(line),
		Background: p.Background,
	}
	for _, st := range p.Stages {
		e.Stages = append(e.Stages, st.Args[0])
	}
	if r != nil {
		e.Pgid = r.Pgid
		e.Job = r.Job
		e.Stopped = r.Stopped
		e.ExitCode = r.ExitCode
	}
	if err != nil {
		e.Error = err.Error()
	}
	e.Cwd, _ = os.Getwd()
	if err := s.audit.Log(e, d); err != nil {
		s.log.Warnw("audit log failed", "error", err)
	}
}

// Status is the interpreter's exit status: the code given to exit, or the
// status of the most recent line.
func (s *Shell) Status() int {
	if s.exiting {
		return s.exitCode
	}
	return s.last
}

// LastStatus returns the status of the most recent line.
func (s *Shell) LastStatus() int { return s.last }

// Jobs returns the session's job table.
func (s *Shell) Jobs() *job.Table { return s.jobs }

// byteReader hands out one byte per Read so the line reader never consumes
// input that belongs to the next command.
type byteReader struct{ r io.Reader }

func (b byteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return b.r.Read(p)
}

type palette struct {
	prompt  *color.Color
	stopped *color.Color
	done    *color.Color
}

func newPalette(mode string, interactive bool) palette {
	p := palette{
		prompt:  color.New(color.FgGreen, color.Bold),
		stopped: color.New(color.FgYellow),
		done:    color.New(color.FgBlue),
	}
	enabled := mode == config.ColorAlways || (mode == config.ColorAuto && interactive && !color.NoColor)
	for _, c := range []*color.Color{p.prompt, p.stopped, p.done} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) notice(j job.Job) string {
	line := builtin.Notice(j)
	switch j.State {
	case job.Stopped:
		return p.stopped.Sprint(line)
	case job.Done:
		return p.done.Sprint(line)
	default:
		return line
	}
}
