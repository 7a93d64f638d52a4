// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moby/sys/reexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marcelocantos/osh/internal/audit"
	"github.com/marcelocantos/osh/internal/config"
	"github.com/marcelocantos/osh/internal/job"
)

func TestMain(m *testing.M) {
	if reexec.Init() {
		return
	}
	os.Exit(m.Run())
}

type fixture struct {
	t      *testing.T
	sh     *Shell
	dir    string
	stdout string
	stderr string
}

func newFixture(t *testing.T, cfg *config.Config, input string, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		t:      t,
		dir:    dir,
		stdout: filepath.Join(dir, "stdout"),
		stderr: filepath.Join(dir, "stderr"),
	}

	inPath := filepath.Join(dir, "stdin")
	require.NoError(t, os.WriteFile(inPath, []byte(input), 0644))
	in, err := os.Open(inPath)
	require.NoError(t, err)
	out, err := os.Create(f.stdout)
	require.NoError(t, err)
	errOut, err := os.Create(f.stderr)
	require.NoError(t, err)

	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.Color = config.ColorNever
	}
	opts = append([]Option{WithStdio(in, out, errOut)}, opts...)
	f.sh, err = New(cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		f.sh.Close()
		in.Close()
		out.Close()
		errOut.Close()
	})
	return f
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *fixture) read(path string) string {
	f.t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(f.t, err)
	return string(data)
}

func (f *fixture) script(name, body string) string {
	f.t.Helper()
	path := f.path(name)
	require.NoError(f.t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestRunLineExternal(t *testing.T) {
	f := newFixture(t, nil, "")

	assert.Equal(t, 0, f.sh.RunLine("echo hello | tr a-z A-Z"))
	assert.Equal(t, "HELLO\n", f.read(f.stdout))

	assert.Equal(t, 1, f.sh.RunLine("false"))
	assert.Equal(t, 1, f.sh.LastStatus())
}

func TestRunLineBlankKeepsStatus(t *testing.T) {
	f := newFixture(t, nil, "")
	f.sh.RunLine("false")
	assert.Equal(t, 1, f.sh.RunLine("   "))
	assert.Equal(t, 1, f.sh.RunLine("# comment"))
}

func TestRunLineReportsErrors(t *testing.T) {
	tests := []struct {
		line string
		code int
		want string
	}{
		{"echo 'open", 2, "osh: syntax error"},
		{"echo $HOME", 2, "osh: unsupported syntax: parameter expansion"},
		{"a && b", 2, "osh: unsupported syntax"},
		{"osh-no-such-program", 127, "osh: command not found: osh-no-such-program"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			f := newFixture(t, nil, "")
			assert.Equal(t, tt.code, f.sh.RunLine(tt.line))
			assert.Contains(t, f.read(f.stderr), tt.want)
		})
	}
}

func TestRunLineRedirects(t *testing.T) {
	f := newFixture(t, nil, "")
	out := f.path("out.txt")

	f.sh.RunLine("echo one > " + out)
	f.sh.RunLine("echo two >> " + out)
	f.sh.RunLine("sort -r < " + out + " > " + f.path("sorted.txt"))
	assert.Equal(t, "two\none\n", f.read(f.path("sorted.txt")))
}

func TestRunLineBackgroundAndDoneNotice(t *testing.T) {
	f := newFixture(t, nil, "")

	assert.Equal(t, 0, f.sh.RunLine("sleep 0.1 &"))
	assert.Regexp(t, `^\[1\] \d+\n$`, f.read(f.stderr))

	j, ok := f.sh.Jobs().Latest()
	require.True(t, ok)
	assert.Equal(t, "sleep 0.1", j.Text)

	require.Eventually(t, func() bool {
		f.sh.reaper.Notify()
		f.sh.safePoint()
		return strings.Contains(f.read(f.stderr), "[1]+ Done  sleep 0.1")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, f.sh.Jobs().Len(), "Done jobs are reclaimed once announced")

	// Announced once only.
	f.sh.safePoint()
	assert.Equal(t, 1, strings.Count(f.read(f.stderr), "Done"))
}

func TestDoneJobsKeptWhenConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Color = config.ColorNever
	cfg.Jobs.ReapDone = false
	cfg.Jobs.Notify = false
	f := newFixture(t, cfg, "")

	f.sh.RunLine("true &")
	require.Eventually(t, func() bool {
		f.sh.reaper.Notify()
		f.sh.safePoint()
		j, ok := f.sh.Jobs().Latest()
		return ok && j.State == job.Done
	}, 5*time.Second, 20*time.Millisecond)

	assert.NotContains(t, f.read(f.stderr), "Done")
	assert.Equal(t, 1, f.sh.Jobs().Len())

	f.sh.RunLine("jobs > " + f.path("jobs.txt"))
	assert.Regexp(t, `^\[1\] \d+  Done  \(true\)\n$`, f.read(f.path("jobs.txt")))
	assert.Equal(t, 1, f.sh.Jobs().Len(), "jobs keeps Done entries when reclamation is off")
}

func TestStoppedJobAndFg(t *testing.T) {
	f := newFixture(t, nil, "")
	stopper := f.script("stopper", "kill -STOP $$\necho resumed")

	code := f.sh.RunLine(stopper)
	assert.Equal(t, 128+int(unix.SIGSTOP), code)
	assert.Contains(t, f.read(f.stderr), "[1]+ Stopped  "+stopper)

	j, ok := f.sh.Jobs().Latest()
	require.True(t, ok)
	assert.Equal(t, job.Stopped, j.State)

	// The stop was already announced; the next prompt stays quiet.
	f.sh.safePoint()
	assert.Equal(t, 1, strings.Count(f.read(f.stderr), "]+ Stopped"))

	assert.Equal(t, 0, f.sh.RunLine("fg %1"))
	assert.Contains(t, f.read(f.stdout), "resumed\n")
	assert.Zero(t, f.sh.Jobs().Len())
}

func TestFgUnknownJob(t *testing.T) {
	f := newFixture(t, nil, "")
	assert.Equal(t, 1, f.sh.RunLine("fg %3"))
	assert.Equal(t, "osh: fg: %3: no such job\n", f.read(f.stderr))
}

func TestBuiltinCd(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Chdir(wd)
	t.Setenv("PWD", wd)

	f := newFixture(t, nil, "")
	target, err := filepath.EvalSymlinks(f.dir)
	require.NoError(t, err)

	assert.Equal(t, 0, f.sh.RunLine("cd "+target))
	got, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, target, got)
	assert.Equal(t, target, os.Getenv("PWD"))

	assert.Equal(t, 1, f.sh.RunLine("cd "+f.path("missing")))
	assert.Contains(t, f.read(f.stderr), "osh: cd:")
}

func TestRunReadsUntilEOF(t *testing.T) {
	f := newFixture(t, nil, "echo a\n\necho b\nfalse")
	assert.Equal(t, 1, f.sh.Run())
	assert.Equal(t, "a\nb\n", f.read(f.stdout))
}

func TestRunStopsAtExit(t *testing.T) {
	f := newFixture(t, nil, "echo a\nexit 3\necho never\n")
	assert.Equal(t, 3, f.sh.Run())
	assert.Equal(t, "a\n", f.read(f.stdout))
	assert.Equal(t, 3, f.sh.Status())
}

func TestRunLeavesInputForCommands(t *testing.T) {
	f := newFixture(t, nil, "sh -c 'read x; echo got $x'\nmeant for sh\necho after\n")
	assert.Equal(t, 0, f.sh.Run())
	assert.Equal(t, "got meant for sh\nafter\n", f.read(f.stdout))
}

func TestRunInteractivePrompt(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Color = config.ColorNever
	cfg.Prompt = "test> "
	f := newFixture(t, cfg, "echo hi\n", WithInteractive(true))

	assert.Equal(t, 0, f.sh.Run())
	assert.Equal(t, "test> hi\ntest> \n", f.read(f.stdout))
}

func TestAuditRecordsLaunches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := audit.NewLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	f := newFixture(t, nil, "", WithAudit(logger))
	f.sh.RunLine("echo hi | cat")
	f.sh.RunLine("cd .")
	f.sh.RunLine("sh -c 'exit 4'")

	n, err := audit.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "builtins are not launches")

	entries, err := audit.Tail(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "echo hi | cat", entries[0].Line)
	assert.Equal(t, []string{"echo", "cat"}, entries[0].Stages)
	assert.NotZero(t, entries[0].Pgid)
	assert.Equal(t, 4, entries[1].ExitCode)
	assert.Equal(t, logger.Session(), entries[1].Session)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Color = "sometimes"
	_, err := New(cfg)
	assert.Error(t, err)
}
