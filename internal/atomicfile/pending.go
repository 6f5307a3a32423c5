// Package atomicfile provides crash-safe file replacement through a
// surrogate file created beside the target and published with an atomic
// rename.
//
// A [PendingFile] is the surrogate: bytes written to it are invisible at the
// target path until [PendingFile.Commit] publishes them in one step.
// [PendingFile.Rollback] discards the surrogate and leaves the target as it
// was. On Unix the surrogate is a renameio pending file; on Windows it is
// published with MoveFileEx.

package atomicfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrNotOpen is returned by [PendingFile] operations after the surrogate has
// been committed or rolled back.
var ErrNotOpen = errors.New("surrogate file is not open")

// surrogate is the platform half of a pending file.
type surrogate interface {
	Write(p []byte) (int, error)
	Name() string
	// publish flushes, closes and renames the surrogate over the target.
	publish() error
	// discard closes and removes the surrogate.
	discard() error
}

// PendingFile is an open surrogate for one target path. It is owned by a
// single writer and is not safe for concurrent use.
type PendingFile struct {
	target string
	s      surrogate
	open   bool
}

// Create opens a surrogate for path. perm applies when the target does not
// exist yet; an existing target's permission bits are carried over where the
// platform allows.
//
// An existing target must be writable. A symlinked target is resolved first,
// so the surrogate lives beside the real file and Commit replaces that file
// while the link stays in place.
func Create(path string, perm os.FileMode) (*PendingFile, error) {
	file, err := resolveTarget(path)
	if err != nil {
		return nil, err
	}
	s, err := newSurrogate(file, perm)
	if err != nil {
		return nil, err
	}
	slog.Debug("surrogate created", "target", path, "resolved", file, "surrogate", s.Name())
	return &PendingFile{target: path, s: s, open: true}, nil
}

// resolveTarget returns the file a save of path replaces. A missing target
// or a dangling link resolves to path itself.
func resolveTarget(path string) (string, error) {
	file := path
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(path)
		switch {
		case err == nil:
			file = resolved
		case !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
	}
	if err := checkWritable(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return file, nil
}

// Write appends p to the surrogate.
func (p *PendingFile) Write(b []byte) (int, error) {
	if !p.open {
		return 0, ErrNotOpen
	}
	return p.s.Write(b)
}

// Name returns the surrogate's path.
func (p *PendingFile) Name() string { return p.s.Name() }

// Target returns the path the surrogate will replace.
func (p *PendingFile) Target() string { return p.target }

// IsOpen reports whether the surrogate is neither committed nor rolled back.
func (p *PendingFile) IsOpen() bool { return p.open }

// Commit publishes the surrogate over the target. On failure the surrogate
// is removed and the target keeps its previous content.
func (p *PendingFile) Commit() error {
	if !p.open {
		return ErrNotOpen
	}
	p.open = false
	if err := p.s.publish(); err != nil {
		if derr := p.s.discard(); derr != nil {
			slog.Warn("surrogate cleanup failed", "surrogate", p.s.Name(), "error", derr)
		}
		return err
	}
	slog.Debug("surrogate committed", "target", p.target)
	return nil
}

// Rollback removes the surrogate without touching the target.
func (p *PendingFile) Rollback() error {
	if !p.open {
		return ErrNotOpen
	}
	p.open = false
	if err := p.s.discard(); err != nil {
		return fmt.Errorf("discard surrogate: %w", err)
	}
	slog.Debug("surrogate rolled back", "target", p.target)
	return nil
}
