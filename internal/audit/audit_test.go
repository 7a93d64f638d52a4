// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func entry(line string) Entry {
	return Entry{
		Line:     line,
		Stages:   []string{"grep", "head"},
		Pgid:     4242,
		ExitCode: 0,
		Cwd:      "/tmp",
	}
}

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	logger, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func TestLogAndVerify(t *testing.T) {
	logger, path := newTestLogger(t)

	for i := 0; i < 5; i++ {
		if err := logger.Log(entry("grep x | head"), time.Duration(i)*time.Millisecond); err != nil {
			t.Fatalf("log entry %d: %v", i, err)
		}
	}

	n, err := Verify(path)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 entries verified, got %d", n)
	}
}

func TestLogFillsChainFields(t *testing.T) {
	logger, path := newTestLogger(t)

	e := entry("sleep 10 &")
	e.Background = true
	e.Job = 1
	if err := logger.Log(e, 1500*time.Microsecond); err != nil {
		t.Fatal(err)
	}

	entries, err := Tail(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := entries[0]
	if got.Seq != 1 || got.PrevHash != genesisHash() {
		t.Errorf("unexpected chain fields: seq=%d prev=%s", got.Seq, got.PrevHash)
	}
	if _, err := uuid.Parse(got.Session); err != nil {
		t.Errorf("session %q is not a uuid: %v", got.Session, err)
	}
	if got.Session != logger.Session() {
		t.Errorf("session mismatch")
	}
	if got.Duration != 1.5 {
		t.Errorf("expected 1.5ms, got %v", got.Duration)
	}
	if !got.Background || got.Job != 1 || got.Line != "sleep 10 &" {
		t.Errorf("payload not preserved: %+v", got)
	}
	if got.Time.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	logger, path := newTestLogger(t)

	for i := 0; i < 3; i++ {
		_ = logger.Log(entry("cat"), time.Millisecond)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	mid := len(data) / 2
	if data[mid] == 'a' {
		data[mid] = 'b'
	} else {
		data[mid] = 'a'
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(path); err == nil {
		t.Fatal("expected verify to detect tampering")
	}
}

func TestVerifyDetectsSequenceGap(t *testing.T) {
	logger, path := newTestLogger(t)

	for i := 0; i < 5; i++ {
		_ = logger.Log(entry("cat"), time.Millisecond)
	}

	// Delete the middle line (line 3 of 5).
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := splitLines(data)
	remaining := append(lines[:2], lines[3:]...)
	var newData []byte
	for _, line := range remaining {
		newData = append(newData, line...)
		newData = append(newData, '\n')
	}
	if err := os.WriteFile(path, newData, 0600); err != nil {
		t.Fatal(err)
	}

	n, err := Verify(path)
	if err == nil {
		t.Fatal("expected verify to detect sequence gap")
	}
	if n != 2 {
		t.Errorf("expected 2 good entries before the gap, got %d", n)
	}
}

func TestVerifyEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, []byte{}, 0600); err != nil {
		t.Fatal(err)
	}

	if n, err := Verify(path); err != nil || n != 0 {
		t.Fatalf("empty log should be valid: n=%d err=%v", n, err)
	}
}

func TestVerifyMissingLog(t *testing.T) {
	if _, err := Verify(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Fatal("expected error for missing log")
	}
}

func TestLoggerResumesChain(t *testing.T) {
	logger1, path := newTestLogger(t)
	_ = logger1.Log(entry("first"), time.Millisecond)
	_ = logger1.Log(entry("second"), time.Millisecond)

	// A new logger (interpreter restart) continues the chain under a new
	// session.
	logger2, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer logger2.Close()
	_ = logger2.Log(entry("third"), time.Millisecond)

	if _, err := Verify(path); err != nil {
		t.Fatalf("chain should be valid after restart: %v", err)
	}

	entries, err := Tail(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[2].Seq != 3 {
		t.Errorf("expected seq 3, got %d", entries[2].Seq)
	}
	if entries[0].Session == entries[2].Session {
		t.Error("expected a fresh session id after restart")
	}
}

func TestTailAll(t *testing.T) {
	logger, path := newTestLogger(t)
	for _, line := range []string{"a", "b", "c"} {
		_ = logger.Log(entry(line), 0)
	}

	entries, err := Tail(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Line != "a" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	entries, _ = Tail(path, 2)
	if len(entries) != 2 || entries[0].Line != "b" {
		t.Fatalf("unexpected tail: %+v", entries)
	}
}

func TestFailedWriteDoesNotAdvanceChain(t *testing.T) {
	logger, path := newTestLogger(t)
	if err := logger.Log(entry("first"), 0); err != nil {
		t.Fatal(err)
	}
	if logger.Path() != path {
		t.Errorf("Path() = %q, want %q", logger.Path(), path)
	}

	logger.Close()
	if err := logger.Log(entry("lost"), 0); err == nil {
		t.Fatal("expected write to a closed log to fail")
	}

	next, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer next.Close()
	if err := next.Log(entry("second"), 0); err != nil {
		t.Fatal(err)
	}

	n, err := Verify(path)
	if err != nil {
		t.Fatalf("chain broken: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestNewLoggerSkipsUndecodableTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	logger, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()
	if err := logger.Log(entry("after"), 0); err != nil {
		t.Fatal(err)
	}

	entries, err := Tail(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Seq != 1 || entries[0].PrevHash != genesisHash() {
		t.Errorf("expected a fresh chain, got seq=%d prev=%s", entries[0].Seq, entries[0].PrevHash)
	}
}
