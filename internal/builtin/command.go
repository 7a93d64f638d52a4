// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"fmt"
	"io"

	getopt "github.com/pborman/getopt/v2"
)

// command parses a builtin's flags. A fresh command is built for every
// invocation since the flag set keeps parsed values.
type command struct {
	// Use holds a one line usage string.
	Use string
	// Short holds a one line description of the command.
	Short string

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (c *command) Flags() *getopt.Set {
	if c.flags == nil {
		c.flags = getopt.New()
	}
	return c.flags
}

// PrintHelp writes help for the command to w.
func (c *command) PrintHelp(w io.Writer) {
	fmt.Fprintf(w, "usage: %s\n", c.Use)
	fmt.Fprintln(w, c.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	c.Flags().PrintOptions(w)
}

// Run parses args and, unless parsing failed or help was requested, calls
// fn with the remaining operands.
func (c *command) Run(sh Shell, args []string, fn func(operands []string) int) int {
	opts := c.Flags()
	help := opts.BoolLong("help", 'h', "show this help and exit")

	if err := opts.Getopt(args, nil); err != nil {
		fmt.Fprintf(sh.Stderr(), "osh: %s: %v\n", args[0], err)
		c.PrintHelp(sh.Stderr())
		return 2
	}
	if *help {
		c.PrintHelp(sh.Stdout())
		return 0
	}
	return fn(opts.Args())
}
