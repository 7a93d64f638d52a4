// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package launch

import "golang.org/x/sys/unix"

// dup2 via dup3: some Linux ports have no dup2 system call. The duplicate
// is not close-on-exec.
func dup2(oldfd, newfd int) error {
	if oldfd == newfd {
		return nil
	}
	return unix.Dup3(oldfd, newfd, 0)
}
