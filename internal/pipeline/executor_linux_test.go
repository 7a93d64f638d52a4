// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/moby/sys/reexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/osh/internal/job"
	"github.com/marcelocantos/osh/internal/term"
)

const terminalProbeName = "osh-pipeline-terminal-probe"

func init() {
	reexec.Register(terminalProbeName, terminalProbe)
}

// ownsTerminal exits 0 when the shell's process group is the terminal's
// foreground group (fields 5 and 8 of /proc/PID/stat).
const ownsTerminal = `set -- $(cat /proc/$$/stat); [ "$5" = "$8" ]`

// terminalProbe runs as the session leader of a fresh pty and drives a
// pipeline on its real terminal.
func terminalProbe() {
	fail := func(format string, args ...any) {
		fmt.Printf("FAIL "+format+"\n", args...)
		os.Exit(1)
	}

	t, err := term.Open(os.Stdin)
	if err != nil {
		fail("open: %v", err)
	}
	if err := t.Init(); err != nil {
		fail("init: %v", err)
	}
	before, err := t.Owner()
	if err != nil {
		fail("owner: %v", err)
	}

	e := NewExecutor(job.NewTable(), t)
	r, err := e.Run(&Pipeline{
		Stages: []Stage{
			{Args: []string{"sh", "-c", ownsTerminal}},
			{Args: []string{"sh", "-c", ownsTerminal}},
		},
		Text: "owns terminal",
	})
	if err != nil {
		fail("run: %v", err)
	}
	if !slices.Equal(r.ExitCodes, []int{0, 0}) {
		fail("stages not in the foreground: exit codes %v", r.ExitCodes)
	}
	if after, _ := t.Owner(); after != before {
		fail("owner after run %d, before %d", after, before)
	}
	fmt.Println("OK")
}

func TestRunOnRealTerminal(t *testing.T) {
	cmd := reexec.Command(terminalProbeName)
	ptmx, err := pty.Start(cmd)
	require.NoError(t, err)
	defer ptmx.Close()

	// Reading the master ends with EIO once the probe closes its side.
	out, _ := io.ReadAll(ptmx)
	_ = cmd.Wait()

	assert.Contains(t, string(out), "OK", "probe output: %s", strings.TrimSpace(string(out)))
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}

func TestRunLeaksNoDescriptors(t *testing.T) {
	h := newHarness(t)
	before := openFDs(t)

	for range 3 {
		h.run(cmd("echo", "x"), cmd("cat"), cmd("cat"), cmd("wc", "-l"))
	}
	_, err := h.exec.Run(&Pipeline{Stages: []Stage{cmd("true"), cmd("true")}, Background: true})
	require.NoError(t, err)

	assert.Equal(t, before, openFDs(t))
}

// Each stage prints the process group it runs in.
func TestRunStagesShareProcessGroup(t *testing.T) {
	h := newHarness(t)
	probe := "cut -d' ' -f5 /proc/$$/stat"

	r := h.run(
		Stage{Args: []string{"sh", "-c", probe}, Output: h.path("a")},
		Stage{Args: []string{"sh", "-c", probe}, Output: h.path("b")},
		Stage{Args: []string{"sh", "-c", probe}, Output: h.path("c")},
	)
	require.Len(t, r.Pids, 3)
	assert.Equal(t, r.Pids[0], r.Pgid)

	want := strconv.Itoa(r.Pgid)
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, want, strings.TrimSpace(h.read(h.path(name))), "stage output %s", name)
	}
	assert.NotEqual(t, strconv.Itoa(syscall.Getpgrp()), want)
}

// failStarting makes the start of stage n fail.
func failStarting(e *Executor, n int, cause error) {
	calls := 0
	e.start = func(c *exec.Cmd) error {
		defer func() { calls++ }()
		if calls == n {
			return cause
		}
		return c.Start()
	}
}

func TestRunLaterStageFailsToStart(t *testing.T) {
	h := newHarness(t)
	cause := errors.New("resource temporarily unavailable")
	failStarting(h.exec, 1, cause)
	before := openFDs(t)

	r, err := h.exec.Run(&Pipeline{
		Stages: []Stage{cmd("cat"), cmd("cat"), cmd("wc", "-l")},
		Text:   "cat | cat | wc -l",
	})

	var le *LaunchError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, 1, le.Stage)
	assert.ErrorIs(t, err, cause)

	require.NotNil(t, r)
	require.Len(t, r.Pids, 1)
	assert.Equal(t, r.Pids[0], r.Pgid)
	require.NotZero(t, r.Job)

	j, ok := h.jobs.Get(r.Pgid)
	require.True(t, ok)
	assert.Equal(t, job.Running, j.State)
	assert.Equal(t, r.Job, j.Number)
	assert.Equal(t, r.Pids, h.jobs.Members(r.Pgid))

	assert.Equal(t, []int{r.Pgid}, h.term.foreground)
	assert.Equal(t, 1, h.term.restores)
	assert.Equal(t, before, openFDs(t))

	// The started stage sees EOF and exits once the pipes are gone.
	reaper := job.NewReaper(h.jobs)
	require.Eventually(t, func() bool {
		reaper.Drain()
		j, _ := h.jobs.Get(r.Pgid)
		return j.State == job.Done
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunFirstStageFailsToStart(t *testing.T) {
	h := newHarness(t)
	failStarting(h.exec, 0, errors.New("no more processes"))
	before := openFDs(t)

	r, err := h.exec.Run(&Pipeline{Stages: []Stage{cmd("true"), cmd("true")}})

	var le *LaunchError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, 0, le.Stage)
	require.NotNil(t, r)
	assert.Zero(t, r.Job)
	assert.Zero(t, h.jobs.Len())
	assert.Empty(t, h.term.foreground)
	assert.Zero(t, h.term.restores)
	assert.Equal(t, before, openFDs(t))
}
