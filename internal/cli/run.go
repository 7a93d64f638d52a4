// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/marcelocantos/osh/internal/audit"
	"github.com/marcelocantos/osh/internal/config"
	"github.com/marcelocantos/osh/internal/logging"
	"github.com/marcelocantos/osh/internal/shell"
	"github.com/marcelocantos/osh/internal/term"
)

// Options selects how RunShell drives the interpreter.
type Options struct {
	// Command, when set, is run as the only line instead of reading stdin.
	Command *string
	// NoJobControl keeps the interpreter off the terminal even when
	// interactive.
	NoJobControl bool
}

// RunShell builds a session from cfg and runs it to completion, returning
// the interpreter's exit status. Job control is enabled only for an
// interactive session whose stdin is a terminal.
func RunShell(cfg *config.Config, opts Options, stdin, stdout, stderr *os.File) int {
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "osh: log: %v\n", err)
		return 1
	}

	interactive := opts.Command == nil && isatty.IsTerminal(stdin.Fd())
	shellOpts := []shell.Option{
		shell.WithStdio(stdin, stdout, stderr),
		shell.WithLogger(log),
		shell.WithInteractive(interactive),
	}

	if cfg.Audit.Enabled {
		logger, err := audit.NewLogger(cfg.Audit.Path)
		if err != nil {
			// Continue without audit logging.
			fmt.Fprintf(stderr, "osh: audit: %v\n", err)
		} else {
			defer logger.Close()
			shellOpts = append(shellOpts, shell.WithAudit(logger))
		}
	}

	if interactive && !opts.NoJobControl {
		t, err := openTerminal(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "osh: job control disabled: %v\n", err)
			log.Warnw("job control disabled", "error", err)
		} else {
			shellOpts = append(shellOpts, shell.WithTerminal(t))
		}
	}

	sh, err := shell.New(cfg, shellOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "osh: %v\n", err)
		return 1
	}
	defer sh.Close()

	if opts.Command != nil {
		sh.RunLine(*opts.Command)
		return sh.Status()
	}
	return sh.Run()
}

func openTerminal(f *os.File) (*term.Terminal, error) {
	t, err := term.Open(f)
	if err != nil {
		return nil, err
	}
	if err := t.Init(); err != nil {
		return nil, fmt.Errorf("claim terminal: %w", err)
	}
	return t, nil
}
