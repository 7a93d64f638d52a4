// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/moby/sys/reexec"

	"github.com/marcelocantos/osh/internal/cli"
)

var version = "dev"

func main() {
	// Children re-enter here to set up their stage before exec.
	if reexec.Init() {
		return
	}
	os.Exit(cli.Execute(version, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
