// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const genesisInput = "osh-genesis"

// Logger appends hash-chained entries to one log file. Entries from one
// Logger share a session id; the chain itself spans sessions.
type Logger struct {
	mu      sync.Mutex
	f       *os.File
	session string
	seq     uint64 // sequence number of the last entry in the file
	head    string // hash of the last entry in the file
}

// NewLogger opens or creates the audit log at path and picks the chain up
// from its last entry. Close releases the file.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	seq, head, err := chainHead(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{f: f, session: uuid.NewString(), seq: seq, head: head}, nil
}

// chainHead returns the sequence number and hash the next entry links to.
// A missing or empty log, or one whose last line does not decode, starts
// from the genesis hash.
func chainHead(path string) (uint64, string, error) {
	last, err := Tail(path, 1)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, genesisHash(), nil
	case err != nil:
		return 0, "", err
	case len(last) == 0:
		return 0, genesisHash(), nil
	}
	return last[0].Seq, last[0].Hash, nil
}

// Log appends e. The chain fields, timestamp and session are filled in;
// duration is how long the pipeline held the interpreter. The chain only
// advances once the entry is written.
func (l *Logger) Log(e Entry, duration time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.seq + 1
	e.Time = time.Now().UTC()
	e.Session = l.session
	e.PrevHash = l.head
	e.Duration = float64(duration.Microseconds()) / 1000.0
	e.Hash = computeHash(e)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	l.seq, l.head = e.Seq, e.Hash
	return nil
}

// Path returns the audit log file path.
func (l *Logger) Path() string { return l.f.Name() }

// Session returns the id stamped on every entry this logger writes.
func (l *Logger) Session() string { return l.session }

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

func genesisHash() string {
	h := sha256.Sum256([]byte(genesisInput))
	return hex.EncodeToString(h[:])
}

// computeHash hashes e with its Hash field empty.
func computeHash(e Entry) string {
	e.Hash = ""
	data, _ := json.Marshal(e)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
