// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import "fmt"

type Cd struct{}

var _ Builtin = (*Cd)(nil)

func (c *Cd) Name() string        { return "cd" }
func (c *Cd) Description() string { return "change the working directory" }

func (c *Cd) Run(sh Shell, args []string) int {
	cmd := &command{Use: "cd [dir]", Short: c.Description()}
	return cmd.Run(sh, args, func(operands []string) int {
		var dir string
		switch len(operands) {
		case 0:
			dir = sh.Getenv("HOME")
			if dir == "" {
				fmt.Fprintln(sh.Stderr(), "osh: cd: HOME not set")
				return 1
			}
		case 1:
			dir = operands[0]
		default:
			fmt.Fprintln(sh.Stderr(), "osh: cd: too many arguments")
			return 1
		}
		if err := sh.Chdir(dir); err != nil {
			fmt.Fprintf(sh.Stderr(), "osh: cd: %v\n", err)
			return 1
		}
		return 0
	})
}
