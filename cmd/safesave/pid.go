package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tools.zach/dev/safesave/internal/paths"
)

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken generates a random 16-character hex token used to prove ownership
// of the PID file, so [removePID] only deletes the file if this server wrote it.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID opens the PID file, locks it and writes "PID:TOKEN". The returned
// handle holds the lock and must stay open while the server runs; pass it to
// [removePID] on shutdown.
func writePID(data paths.DataDir, token string) (*os.File, error) {
	f, err := os.OpenFile(data.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID releases the lock and removes the PID file if it still carries
// token.
func removePID(data paths.DataDir, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	content, err := os.ReadFile(data.PID())
	if err != nil {
		return
	}
	if _, owner, ok := strings.Cut(string(content), ":"); ok && owner == token {
		os.Remove(data.PID())
	}
}

// checkStalePID reports whether another server holds the PID file lock.
// A PID file left by a dead server is removed.
func checkStalePID(data paths.DataDir) (alive bool, pid int) {
	f, err := os.OpenFile(data.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		content, _ := os.ReadFile(data.PID())
		f.Close()
		head, _, _ := strings.Cut(string(content), ":")
		if p, convErr := strconv.Atoi(head); convErr == nil {
			return true, p
		}
		return true, 0
	}

	// Lock acquired: the previous server is gone.
	_ = unlockFile(f)
	f.Close()
	os.Remove(data.PID())
	return false, 0
}
