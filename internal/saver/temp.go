package saver

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"tools.zach/dev/safesave/internal/fileerr"
	"tools.zach/dev/safesave/internal/fsys"
)

// defaultTemplate is used when NewTemp gets an empty template.
const defaultTemplate = "safesave.XXXXXX"

// TempFileSaver writes a new, uniquely named file. The file is removed by
// Close unless auto-removal was switched off, so callers that hand the path
// to someone else call SetAutoRemove(false).
type TempFileSaver struct {
	base
	fs         fsys.FileSystem
	file       fsys.File
	autoRemove bool
	closed     bool
}

// NewTemp creates a temp file from template. The last run of six or more
// 'X' is replaced by a unique string; a template without such a run gets
// ".XXXXXX" appended. A '*' in the file name is rejected with
// [fileerr.ErrBadTemplate]. Templates without a directory component are
// placed in the temp directory.
func NewTemp(template string, opts ...Option) *TempFileSaver {
	o := newOptions(opts)
	dir, pattern, err := splitTemplate(template, o.tempDir)
	t := &TempFileSaver{fs: o.fs, autoRemove: true}

	var f fsys.File
	if err == nil {
		f, err = o.fs.CreateTemp(dir, pattern)
	}
	if err != nil {
		abs, aerr := filepath.Abs(dir)
		if aerr != nil {
			abs = dir
		}
		t.result.Record(false, func() *fileerr.Error { return fileerr.TempCreate(abs, err) })
		return t
	}
	t.file, t.w, t.path = f, f, f.Name()
	slog.Debug("temp file created", "path", t.path)
	return t
}

// splitTemplate turns a template into the dir and pattern for CreateTemp,
// whose only placeholder is the last '*'.
func splitTemplate(template, tempDir string) (dir, pattern string, err error) {
	if template == "" {
		template = defaultTemplate
	}
	dir, pattern = filepath.Split(template)
	if dir == "" {
		dir = tempDir
	} else {
		dir = filepath.Clean(dir)
	}
	if pattern == "" {
		pattern = defaultTemplate
	}
	if strings.Contains(pattern, "*") {
		return dir, "", fmt.Errorf("%s: %w", pattern, fileerr.ErrBadTemplate)
	}

	if i := strings.LastIndex(pattern, "XXXXXX"); i >= 0 {
		start := i
		for start > 0 && pattern[start-1] == 'X' {
			start--
		}
		return dir, pattern[:start] + "*" + pattern[i+6:], nil
	}
	return dir, pattern + ".*", nil
}

// AutoRemove reports whether Close removes the file.
func (t *TempFileSaver) AutoRemove() bool { return t.autoRemove }

// SetAutoRemove sets whether Close removes the file.
func (t *TempFileSaver) SetAutoRemove(on bool) { t.autoRemove = on }

// Finalize closes the file and returns the first recorded failure.
func (t *TempFileSaver) Finalize() error {
	if t.finalized {
		return t.result.Err()
	}
	t.finalized = true
	if t.file != nil && !t.closed {
		t.closed = true
		err := t.file.Close()
		t.result.Record(err == nil, func() *fileerr.Error { return fileerr.Write(t.path, err) })
	}
	return t.result.Err()
}

// FinalizeReport finalizes the file and presents a failure through r.
func (t *TempFileSaver) FinalizeReport(r Reporter) error { return finalizeReport(t, r) }

// Close closes the file if it is still open and removes it when
// auto-removal is on, whether or not the writes succeeded.
func (t *TempFileSaver) Close() error {
	t.finalized = true
	var closeErr error
	if t.file != nil && !t.closed {
		t.closed = true
		closeErr = t.file.Close()
	}
	if t.autoRemove && t.path != "" {
		err := t.fs.Remove(t.path)
		switch {
		case err == nil:
			slog.Debug("temp file removed", "path", t.path)
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
	}
	return closeErr
}
