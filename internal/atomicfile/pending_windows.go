//go:build windows

package atomicfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// moveSurrogate is a plain temp file replaced over the target with
// MoveFileEx. MOVEFILE_WRITE_THROUGH makes the call return only after the
// move reached the disk.
type moveSurrogate struct {
	f      *os.File
	target string
	closed bool
}

// checkWritable fails when path exists with the read-only attribute set.
func checkWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().IsRegular() && info.Mode().Perm()&0o200 == 0 {
		return &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
	}
	return nil
}

func newSurrogate(path string, perm os.FileMode) (surrogate, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		perm = info.Mode().Perm()
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &moveSurrogate{f: f, target: path}, nil
}

func (m *moveSurrogate) Write(p []byte) (int, error) { return m.f.Write(p) }

func (m *moveSurrogate) Name() string { return m.f.Name() }

func (m *moveSurrogate) publish() error {
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.closed = true
	if err := m.f.Close(); err != nil {
		return err
	}
	from, err := windows.UTF16PtrFromString(m.f.Name())
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(m.target)
	if err != nil {
		return err
	}
	if err := windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH); err != nil {
		return &os.LinkError{Op: "movefileex", Old: m.f.Name(), New: m.target, Err: err}
	}
	return nil
}

func (m *moveSurrogate) discard() error {
	if !m.closed {
		m.closed = true
		m.f.Close()
	}
	if err := os.Remove(m.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", m.f.Name(), err)
	}
	return nil
}
