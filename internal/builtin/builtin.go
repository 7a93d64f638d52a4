// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package builtin holds the commands the interpreter runs in its own
// process.
package builtin

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/marcelocantos/osh/internal/job"
	"github.com/marcelocantos/osh/internal/pipeline"
)

// Shell is the interpreter state a builtin may use.
type Shell interface {
	Jobs() *job.Table
	Resume(pgid int, foreground bool) (*pipeline.Report, error)

	// Drain collects pending child state changes into the job table.
	Drain()

	// ReapDone reports whether Done jobs are removed once reported.
	ReapDone() bool

	Stdout() io.Writer
	Stderr() io.Writer
	Getenv(key string) string
	Chdir(dir string) error

	// Exit asks the interpreter to stop after the current line.
	Exit(code int)
	LastStatus() int

	Registry() *Registry
}

// Builtin is a command run inside the interpreter.
type Builtin interface {
	// Name is the command word that selects the builtin.
	Name() string

	// Description returns a one-line summary for help output.
	Description() string

	// Run executes the builtin. args[0] is the command name. The result is
	// the command's exit status.
	Run(sh Shell, args []string) int
}

// Registry maps names to builtins.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Builtin)}
}

// Register adds b, replacing any builtin of the same name.
func (r *Registry) Register(b Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[b.Name()] = b
}

// Lookup returns the builtin called name.
func (r *Registry) Lookup(name string) (Builtin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin: %q", name)
	}
	return b, nil
}

// All returns all registered builtins sorted by name.
func (r *Registry) All() []Builtin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Builtin, 0, len(r.builtins))
	for _, b := range r.builtins {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name() < all[j].Name()
	})
	return all
}
