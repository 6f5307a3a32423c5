// Package reader reads whole files with user-presentable errors.
//
// Local paths are read from disk. Paths of the form scheme://rest are
// handed to the [Device] registered for the scheme, and paths starting with
// ":/" are looked up in the bundled resource namespace.
package reader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"tools.zach/dev/safesave/internal/fileerr"
)

// ResourcePrefix starts every bundled resource name.
const ResourcePrefix = ":/"

// ErrorTitle is the title passed to a [Reporter] for read failures.
const ErrorTitle = "File Error"

// Mode selects how content is returned.
type Mode uint8

const (
	// ReadOnly returns the bytes as stored.
	ReadOnly Mode = 1 << iota
	// Text turns "\r\n" line endings into "\n".
	Text
)

// Device serves files that are not on the local disk. path is the full
// device path including its scheme.
type Device interface {
	FileContents(ctx context.Context, path string) ([]byte, error)
}

// Reporter presents a failure to the user.
type Reporter interface {
	ReportError(title, message string)
}

// Reader reads local files, device paths and bundled resources.
type Reader struct {
	devices   map[string]Device
	resources fs.FS
}

// Option configures a Reader.
type Option func(*Reader)

// WithDevice routes paths with the given scheme to d.
func WithDevice(scheme string, d Device) Option {
	return func(r *Reader) { r.devices[strings.ToLower(scheme)] = d }
}

// WithResources sets the bundled resource namespace.
func WithResources(fsys fs.FS) Option {
	return func(r *Reader) { r.resources = fsys }
}

// New creates a Reader.
func New(opts ...Option) *Reader {
	r := &Reader{devices: make(map[string]Device)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default has no devices and no resources.
var Default = New()

// ReadAll reads path with [Default].
func ReadAll(path string, mode Mode) ([]byte, error) {
	return Default.Fetch(path, mode)
}

// Scheme returns the lower-cased scheme of a device path. Single letters
// are not schemes, so Windows drive paths stay local.
func Scheme(path string) (string, bool) {
	i := strings.Index(path, "://")
	if i < 2 {
		return "", false
	}
	scheme := path[:i]
	for j, c := range scheme {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", false
		}
	}
	return strings.ToLower(scheme), true
}

// Fetch reads the whole of path.
func (r *Reader) Fetch(path string, mode Mode) ([]byte, error) {
	return r.FetchContext(context.Background(), path, mode)
}

// FetchReport reads path and presents a failure through rep.
func (r *Reader) FetchReport(path string, mode Mode, rep Reporter) ([]byte, error) {
	data, err := r.Fetch(path, mode)
	if err != nil && rep != nil {
		rep.ReportError(ErrorTitle, err.Error())
	}
	return data, err
}

// FetchContext reads the whole of path. ctx only bounds device reads.
func (r *Reader) FetchContext(ctx context.Context, path string, mode Mode) ([]byte, error) {
	if mode&^(ReadOnly|Text) != 0 {
		return nil, fileerr.ReadOpen(path, fileerr.ErrUnsupportedMode)
	}

	if scheme, ok := Scheme(path); ok {
		return r.fetchDevice(ctx, scheme, path, mode)
	}

	if strings.HasPrefix(path, ResourcePrefix) && r.resources != nil {
		data, err := fs.ReadFile(r.resources, strings.TrimPrefix(path, ResourcePrefix))
		if err != nil {
			return nil, fileerr.ReadOpen(path, err)
		}
		return normalize(data, mode), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fileerr.ReadOpen(path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fileerr.ReadIO(path, err)
	}
	return normalize(data, mode), nil
}

func (r *Reader) fetchDevice(ctx context.Context, scheme, path string, mode Mode) ([]byte, error) {
	dev, ok := r.devices[scheme]
	if !ok {
		return nil, fileerr.ReadOpen(path, fileerr.ErrNoDevice)
	}
	data, err := dev.FileContents(ctx, path)
	if err != nil {
		var fe *fileerr.Error
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, fileerr.ReadIO(path, err)
	}
	slog.Debug("device read", "scheme", scheme, "path", path, "bytes", len(data))
	return normalize(data, mode), nil
}

// ReadResource returns a bundled resource. A name without the ":/" prefix
// or a missing resource is logged and yields nil.
func (r *Reader) ReadResource(name string) []byte {
	if !strings.HasPrefix(name, ResourcePrefix) {
		slog.Warn("resource name lacks prefix", "name", name, "prefix", ResourcePrefix)
		return nil
	}
	if r.resources == nil {
		slog.Warn("no bundled resources", "name", name)
		return nil
	}
	data, err := fs.ReadFile(r.resources, strings.TrimPrefix(name, ResourcePrefix))
	if err != nil {
		slog.Warn("bundled resource missing", "error", fileerr.ResourceMissing(name))
		return nil
	}
	return data
}

func normalize(data []byte, mode Mode) []byte {
	if mode&Text == 0 {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}
