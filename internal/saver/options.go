package saver

import (
	"os"
	"runtime"

	"tools.zach/dev/safesave/internal/fsys"
)

// DefaultPerm is the permission for files that do not exist yet.
const DefaultPerm os.FileMode = 0o644

type options struct {
	fs            fsys.FileSystem
	perm          os.FileMode
	checkReserved bool
	tempDir       string
}

// Option configures a saver.
type Option func(*options)

// WithFS routes every filesystem call through fs.
func WithFS(fs fsys.FileSystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithPerm sets the permission for newly created files. Replaced files keep
// their existing permission bits.
func WithPerm(perm os.FileMode) Option {
	return func(o *options) { o.perm = perm }
}

// WithReservedNameCheck turns the Windows device name check on or off. It is
// on by default only on Windows.
func WithReservedNameCheck(on bool) Option {
	return func(o *options) { o.checkReserved = on }
}

// WithTempDir sets the directory used for temp templates without a
// directory component. Defaults to [os.TempDir].
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

func newOptions(opts []Option) options {
	o := options{
		fs:            fsys.Default,
		perm:          DefaultPerm,
		checkReserved: runtime.GOOS == "windows",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tempDir == "" {
		o.tempDir = os.TempDir()
	}
	return o
}
