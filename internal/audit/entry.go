// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package audit

import "time"

// Entry represents a single audit log record.
type Entry struct {
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"ts"`
	Session    string    `json:"session"` // interpreter session id
	PrevHash   string    `json:"prev_hash"`
	Line       string    `json:"line"`   // pipeline text as typed
	Stages     []string  `json:"stages"` // program name of each stage
	Pgid       int       `json:"pgid,omitempty"`
	Background bool      `json:"background,omitempty"`
	Job        int       `json:"job,omitempty"` // job number if one was registered
	Stopped    bool      `json:"stopped,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"` // launch error, if any
	Duration   float64   `json:"duration_ms"`     // time until the interpreter regained control
	Cwd        string    `json:"cwd"`
	Hash       string    `json:"hash"` // SHA-256 of this entry (with hash field empty)
}
