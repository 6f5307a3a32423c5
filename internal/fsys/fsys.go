package fsys

import (
	"io"
	"os"

	"tools.zach/dev/safesave/internal/atomicfile"
)

// File is an open file written by the direct and temp strategies.
type File interface {
	io.Writer
	Sync() error
	Close() error
	Name() string
}

// PendingFile is a surrogate file that replaces its target on Commit.
type PendingFile interface {
	io.Writer
	Name() string
	Commit() error
	Rollback() error
	IsOpen() bool
}

// FileSystem is the set of filesystem operations the save path needs.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	CreateTemp(dir, pattern string) (File, error)
	CreatePending(path string, perm os.FileMode) (PendingFile, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
}

// LocalFS implements FileSystem on the local disk.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) CreateTemp(dir, pattern string) (File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) CreatePending(path string, perm os.FileMode) (PendingFile, error) {
	p, err := atomicfile.Create(path, perm)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (LocalFS) Remove(name string) error              { return os.Remove(name) }
func (LocalFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// Default is the local file system.
var Default FileSystem = LocalFS{}
