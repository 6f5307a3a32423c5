// Package aferodev adapts an afero filesystem into a read-only file device,
// so scheme-prefixed paths like mem://notes.txt or site://index.html
// resolve against an in-memory tree or a sandboxed directory.
package aferodev

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"tools.zach/dev/safesave/internal/fileerr"
)

// Device reads whole files from an afero.Fs.
type Device struct {
	fs afero.Fs
}

// New wraps fsys.
func New(fsys afero.Fs) *Device {
	return &Device{fs: fsys}
}

// NewMem returns a device over an empty in-memory filesystem along with the
// filesystem itself, for seeding.
func NewMem() (*Device, afero.Fs) {
	mem := afero.NewMemMapFs()
	return New(mem), mem
}

// NewSandbox returns a read-only device confined to root on disk.
func NewSandbox(root string) *Device {
	return New(afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), root)))
}

// FileContents reads path, which may carry a scheme prefix. Open failures
// and read failures are reported with distinct kinds.
func (d *Device) FileContents(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fileerr.ReadOpen(path, err)
	}
	name := StripScheme(path)

	f, err := d.fs.Open(name)
	if err != nil {
		return nil, fileerr.ReadOpen(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileerr.ReadOpen(path, err)
	}
	if info.IsDir() {
		return nil, fileerr.ReadIO(path, fmt.Errorf("%s: is a directory", name))
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fileerr.ReadIO(path, err)
	}
	return data, nil
}

// Exists reports whether path names a regular file on the device.
func (d *Device) Exists(path string) bool {
	info, err := d.fs.Stat(StripScheme(path))
	return err == nil && !info.IsDir()
}

// StripScheme turns "scheme://a/b" or "scheme:///a/b" into "/a/b". Paths
// without a scheme are returned unchanged.
func StripScheme(path string) string {
	_, rest, ok := strings.Cut(path, "://")
	if !ok {
		return path
	}
	return "/" + strings.TrimLeft(rest, "/")
}
