// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marcelocantos/osh/internal/job"
)

// Format renders j as a jobs listing line: "[N] PGID  State  (text)".
func Format(j job.Job) string {
	return fmt.Sprintf("[%d] %d  %s  (%s)", j.Number, j.Pgid, j.State, j.Text)
}

// Notice renders the line printed when j changes state outside the
// foreground, such as "[2]+ Stopped  sleep 10".
func Notice(j job.Job) string {
	return fmt.Sprintf("[%d]+ %s  %s", j.Number, j.State, j.Text)
}

type Jobs struct{}

var _ Builtin = (*Jobs)(nil)

func (j *Jobs) Name() string        { return "jobs" }
func (j *Jobs) Description() string { return "list jobs, most recent first" }

func (j *Jobs) Run(sh Shell, args []string) int {
	cmd := &command{Use: "jobs [-l] [-p]", Short: j.Description()}
	long := cmd.Flags().Bool('l', "also list the member process ids")
	pgidsOnly := cmd.Flags().Bool('p', "list process group ids only")

	return cmd.Run(sh, args, func([]string) int {
		sh.Drain()
		out := sh.Stdout()
		for _, jb := range sh.Jobs().List() {
			switch {
			case *pgidsOnly:
				fmt.Fprintln(out, jb.Pgid)
			case *long && len(jb.Pids) > 0:
				fmt.Fprintf(out, "%s  %s\n", Format(jb), joinPids(jb.Pids))
			default:
				fmt.Fprintln(out, Format(jb))
			}
		}
		if sh.ReapDone() {
			sh.Jobs().RemoveDone()
		}
		return 0
	})
}

func joinPids(pids []int) string {
	s := make([]string, len(pids))
	for i, pid := range pids {
		s[i] = strconv.Itoa(pid)
	}
	return strings.Join(s, " ")
}

// resolveJob finds the job named by operands: "%N", "N", or nothing for
// the most recent job. Failures are reported on stderr.
func resolveJob(sh Shell, name string, operands []string) (job.Job, bool) {
	jobs := sh.Jobs()
	switch len(operands) {
	case 0:
		j, ok := jobs.Latest()
		if !ok {
			fmt.Fprintf(sh.Stderr(), "osh: %s: no current job\n", name)
		}
		return j, ok
	case 1:
	default:
		fmt.Fprintf(sh.Stderr(), "osh: %s: too many arguments\n", name)
		return job.Job{}, false
	}

	spec := operands[0]
	number, err := strconv.Atoi(strings.TrimPrefix(spec, "%"))
	if err != nil {
		fmt.Fprintf(sh.Stderr(), "osh: %s: %s: no such job\n", name, spec)
		return job.Job{}, false
	}
	pgid, err := jobs.LookupPgid(number)
	if err != nil {
		fmt.Fprintf(sh.Stderr(), "osh: %s: %%%d: no such job\n", name, number)
		return job.Job{}, false
	}
	j, ok := jobs.Get(pgid)
	if !ok {
		fmt.Fprintf(sh.Stderr(), "osh: %s: %%%d: no such job\n", name, number)
	}
	return j, ok
}
