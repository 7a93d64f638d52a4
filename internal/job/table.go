// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNotFound is returned when a job number has no table entry.
var ErrNotFound = errors.New("no such job")

// State is the lifecycle state of a job.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a child state change reported by wait4.
type Event int

const (
	Exited Event = iota // exited normally or killed by a signal
	Suspended           // stopped by a signal
	Continued           // resumed by SIGCONT
)

// Job is a snapshot of one table entry.
type Job struct {
	Number int
	Pgid   int
	Text   string
	State  State
	Pids   []int // members that have not exited yet
}

type entry struct {
	number int
	pgid   int
	text   string
	state  State
	pids   []int
	// tracked is false for entries registered without member pids; those
	// are matched on the leader pid only.
	tracked bool
}

func (e *entry) snapshot() Job {
	return Job{
		Number: e.number,
		Pgid:   e.pgid,
		Text:   e.text,
		State:  e.state,
		Pids:   slices.Clone(e.pids),
	}
}

// Table is a registry of background and stopped jobs keyed by process group.
// It is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	entries map[int]*entry // by pgid
	order   []int          // pgids in insertion order
	next    int
}

// NewTable returns an empty table whose first job number is 1.
func NewTable() *Table {
	return &Table{
		entries: make(map[int]*entry),
		next:    1,
	}
}

// Add registers a job for pgid and returns its job number. pids lists the
// live members of the group. Every call creates a new entry with a fresh
// number; a stale entry for the same pgid (a reused process id) is dropped.
func (t *Table) Add(pgid int, text string, state State, pids ...int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeLocked(pgid)
	e := &entry{
		number:  t.next,
		pgid:    pgid,
		text:    text,
		state:   state,
		pids:    slices.Clone(pids),
		tracked: len(pids) > 0,
	}
	t.next++
	t.entries[pgid] = e
	t.order = append(t.order, pgid)
	return e.number
}

// LookupPgid resolves a job number to its process group.
func (t *Table) LookupPgid(number int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.number == number {
			return e.pgid, nil
		}
	}
	return 0, fmt.Errorf("%%%d: %w", number, ErrNotFound)
}

// SetState updates the state of the job for pgid. Unknown pgids are ignored.
func (t *Table) SetState(pgid int, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[pgid]; ok {
		e.state = state
	}
}

// SetStopped marks the job for pgid Stopped with pids as its live members.
// The job keeps its number. Unknown pgids are ignored.
func (t *Table) SetStopped(pgid int, pids ...int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[pgid]; ok {
		e.state = Stopped
		e.pids = slices.Clone(pids)
		e.tracked = len(pids) > 0
	}
}

// Remove deletes the job for pgid if present.
func (t *Table) Remove(pgid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(pgid)
}

func (t *Table) removeLocked(pgid int) {
	if _, ok := t.entries[pgid]; !ok {
		return
	}
	delete(t.entries, pgid)
	t.order = slices.DeleteFunc(t.order, func(p int) bool { return p == pgid })
}

// Get returns the job for pgid.
func (t *Table) Get(pgid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[pgid]
	if !ok {
		return Job{}, false
	}
	return e.snapshot(), true
}

// Members returns the live member pids of the job for pgid. An entry that
// was registered without members reports its leader.
func (t *Table) Members(pgid int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[pgid]
	if !ok {
		return nil
	}
	if !e.tracked {
		if e.state == Done {
			return nil
		}
		return []int{e.pgid}
	}
	return slices.Clone(e.pids)
}

// List returns all jobs, most recently added first.
func (t *Table) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	jobs := make([]Job, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		jobs = append(jobs, t.entries[t.order[i]].snapshot())
	}
	return jobs
}

// Latest returns the most recently added job.
func (t *Table) Latest() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.order) == 0 {
		return Job{}, false
	}
	return t.entries[t.order[len(t.order)-1]].snapshot(), true
}

// Len returns the number of jobs in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Observe applies a state change of pid to the job that owns it and returns
// the updated job. Changes for pids no job owns are ignored.
func (t *Table) Observe(pid int, ev Event) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.ownerLocked(pid)
	if e == nil {
		return Job{}, false
	}

	switch ev {
	case Exited:
		if e.tracked {
			e.pids = slices.DeleteFunc(e.pids, func(p int) bool { return p == pid })
			if len(e.pids) == 0 {
				e.state = Done
			}
		} else {
			e.state = Done
		}
	case Suspended:
		e.state = Stopped
	case Continued:
		e.state = Running
	}
	return e.snapshot(), true
}

func (t *Table) ownerLocked(pid int) *entry {
	for _, e := range t.entries {
		if e.tracked {
			if slices.Contains(e.pids, pid) {
				return e
			}
		} else if e.pgid == pid {
			return e
		}
	}
	return nil
}

// RemoveDone deletes every Done job and returns them, oldest first.
func (t *Table) RemoveDone() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var done []Job
	for _, pgid := range slices.Clone(t.order) {
		if e := t.entries[pgid]; e.state == Done {
			done = append(done, e.snapshot())
			t.removeLocked(pgid)
		}
	}
	return done
}

// Clear removes every job. Job numbering is not reset.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entries)
	t.order = nil
}
