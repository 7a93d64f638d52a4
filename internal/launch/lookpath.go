// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package launch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNotFound is the error resulting if a path search failed to find an
// executable file.
var ErrNotFound = errors.New("command not found")

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if !d.Mode().IsRegular() {
		return fs.ErrPermission
	}
	return unix.Access(file, unix.X_OK)
}

// LookPath resolves name against path, a colon-separated directory list.
// A name containing a slash is returned verbatim without consulting path;
// whether it can be executed is left to exec. An empty path element means
// the current directory.
func LookPath(name, path string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}
