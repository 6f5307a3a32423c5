//go:build !windows

package atomicfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"golang.org/x/sys/unix"
)

// renameSurrogate wraps [*renameio.PendingFile], which syncs, closes and
// renames in CloseAtomicallyReplace.
type renameSurrogate struct {
	file *renameio.PendingFile
}

// checkWritable fails when path exists and the caller may not write it.
func checkWritable(path string) error {
	if err := unix.Access(path, unix.W_OK); err != nil {
		return &fs.PathError{Op: "open", Path: path, Err: err}
	}
	return nil
}

func newSurrogate(path string, perm os.FileMode) (surrogate, error) {
	file, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(perm),
		renameio.WithExistingPermissions(),
	)
	if err != nil {
		return nil, err
	}
	return renameSurrogate{file: file}, nil
}

func (r renameSurrogate) Write(p []byte) (int, error) { return r.file.Write(p) }

func (r renameSurrogate) Name() string { return r.file.Name() }

func (r renameSurrogate) publish() error { return r.file.CloseAtomicallyReplace() }

// discard is a no-op after a successful publish. A surrogate already removed
// by a failed rename is not an error.
func (r renameSurrogate) discard() error {
	err := r.file.Cleanup()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
