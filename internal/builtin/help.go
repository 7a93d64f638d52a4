// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"fmt"
	"text/tabwriter"
)

type Help struct{}

var _ Builtin = (*Help)(nil)

func (h *Help) Name() string        { return "help" }
func (h *Help) Description() string { return "describe builtins" }

func (h *Help) Run(sh Shell, args []string) int {
	cmd := &command{Use: "help [name]", Short: h.Description()}
	return cmd.Run(sh, args, func(operands []string) int {
		reg := sh.Registry()
		switch len(operands) {
		case 0:
			w := tabwriter.NewWriter(sh.Stdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "Builtins:")
			for _, b := range reg.All() {
				fmt.Fprintf(w, "  %s\t%s\n", b.Name(), b.Description())
			}
			w.Flush()
			return 0
		case 1:
			b, err := reg.Lookup(operands[0])
			if err != nil {
				fmt.Fprintf(sh.Stderr(), "osh: help: %v\n", err)
				return 1
			}
			return b.Run(sh, []string{b.Name(), "--help"})
		default:
			fmt.Fprintln(sh.Stderr(), "osh: help: too many arguments")
			return 1
		}
	})
}
