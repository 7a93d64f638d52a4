// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"fmt"
	"strconv"
)

type Exit struct{}

var _ Builtin = (*Exit)(nil)

func (e *Exit) Name() string        { return "exit" }
func (e *Exit) Description() string { return "leave the interpreter" }

func (e *Exit) Run(sh Shell, args []string) int {
	cmd := &command{Use: "exit [code]", Short: e.Description()}
	return cmd.Run(sh, args, func(operands []string) int {
		code := sh.LastStatus()
		switch len(operands) {
		case 0:
		case 1:
			n, err := strconv.Atoi(operands[0])
			if err != nil {
				fmt.Fprintf(sh.Stderr(), "osh: exit: %s: numeric argument required\n", operands[0])
				code = 2
				break
			}
			code = n & 0xff
		default:
			fmt.Fprintln(sh.Stderr(), "osh: exit: too many arguments")
			return 1
		}
		sh.Exit(code)
		return code
	})
}
