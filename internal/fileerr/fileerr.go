// Package fileerr defines the error taxonomy shared by the save and read
// paths. Every failure surfaced to a caller is an [*Error] whose message is
// ready to show to a user and whose [Kind] tells the caller which stage
// failed.
package fileerr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ///////////////////////////////////////////////
// Kinds
// ///////////////////////////////////////////////

// Kind classifies a file error by the stage that produced it.
type Kind int

const (
	// KindUnknown is returned by [KindOf] for errors that are not [*Error].
	KindUnknown Kind = iota
	// KindOpen covers reserved names and target or surrogate open failures.
	KindOpen
	// KindWrite covers short writes and OS write or close errors.
	KindWrite
	// KindCommit is a failed publish of the surrogate over the target.
	KindCommit
	// KindReadOpen is a failure to open a file for reading.
	KindReadOpen
	// KindReadIO is a failure while reading an opened file.
	KindReadIO
	// KindResourceMissing is a bundled resource that does not exist.
	KindResourceMissing
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindOpen:            "open",
	KindWrite:           "write",
	KindCommit:          "commit",
	KindReadOpen:        "read-open",
	KindReadIO:          "read-io",
	KindResourceMissing: "resource-missing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ///////////////////////////////////////////////
// Sentinels
// ///////////////////////////////////////////////

var (
	// ErrReservedName marks a target whose base name is a Windows device name.
	ErrReservedName = errors.New("reserved filename")
	// ErrShortWrite marks a write that stored fewer bytes than requested
	// without an OS error, which in practice means the disk is full.
	ErrShortWrite = errors.New("disk full?")
	// ErrResourceMissing marks a bundled resource that is not present.
	ErrResourceMissing = errors.New("resource not there")
	// ErrUnsupportedMode marks a read mode outside ReadOnly|Text.
	ErrUnsupportedMode = errors.New("unsupported read mode")
	// ErrNoDevice marks a device path whose scheme has no registered device.
	ErrNoDevice = errors.New("no device for scheme")
	// ErrBadTemplate marks a temp file template whose name contains '*'.
	ErrBadTemplate = errors.New("template may not contain '*'")
)

// ///////////////////////////////////////////////
// Error
// ///////////////////////////////////////////////

// Error is a user-presentable file error.
type Error struct {
	// Kind is the stage that failed.
	Kind Kind
	// Path is the file the error is about (a directory for temp creation).
	Path string
	// Err is the underlying OS error or one of the package sentinels.
	Err error

	msg string
}

// Error returns the message exactly as it should be shown to a user.
func (e *Error) Error() string { return e.msg }

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the [Kind] of err, or [KindUnknown] when err does not wrap
// an [*Error].
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// OSMessage returns the bare description of an OS error. The operation and
// path prefixes added by [fs.PathError], [os.LinkError] and
// [os.SyscallError] are dropped because every message built here already
// names the path.
func OSMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.Err.Error()
	}
	var se *os.SyscallError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}

// ///////////////////////////////////////////////
// Constructors
// ///////////////////////////////////////////////

// Reserved reports that path names a reserved Windows device.
func Reserved(path string) *Error {
	return &Error{
		Kind: KindOpen,
		Path: path,
		Err:  ErrReservedName,
		msg:  fmt.Sprintf("%s: is a reserved filename on Windows, cannot save", path),
	}
}

// Open reports that path could not be opened for writing. existed selects
// between the overwrite and create wording.
func Open(path string, existed bool, err error) *Error {
	verb := "create"
	if existed {
		verb = "overwrite"
	}
	return &Error{
		Kind: KindOpen,
		Path: path,
		Err:  err,
		msg:  fmt.Sprintf("cannot %s file %s: %s", verb, path, OSMessage(err)),
	}
}

// TempCreate reports that no temporary file could be created in dir.
func TempCreate(dir string, err error) *Error {
	return &Error{
		Kind: KindOpen,
		Path: dir,
		Err:  err,
		msg:  fmt.Sprintf("cannot create temporary file in %s: %s", dir, OSMessage(err)),
	}
}

// Write reports a failed write to path. A nil err means the write came up
// short without an OS error.
func Write(path string, err error) *Error {
	if err == nil {
		return &Error{
			Kind: KindWrite,
			Path: path,
			Err:  ErrShortWrite,
			msg:  fmt.Sprintf("cannot write file %s: disk full?", path),
		}
	}
	return &Error{
		Kind: KindWrite,
		Path: path,
		Err:  err,
		msg:  fmt.Sprintf("cannot write file %s: %s", path, OSMessage(err)),
	}
}

// Commit reports that the surrogate could not replace path.
func Commit(path string, err error) *Error {
	return &Error{
		Kind: KindCommit,
		Path: path,
		Err:  err,
		msg:  fmt.Sprintf("cannot replace file %s: %s", path, OSMessage(err)),
	}
}

// ReadOpen reports that path could not be opened for reading.
func ReadOpen(path string, err error) *Error {
	return &Error{
		Kind: KindReadOpen,
		Path: path,
		Err:  err,
		msg:  fmt.Sprintf("cannot open %s for reading: %s", path, OSMessage(err)),
	}
}

// ReadIO reports that reading the already opened path failed.
func ReadIO(path string, err error) *Error {
	return &Error{
		Kind: KindReadIO,
		Path: path,
		Err:  err,
		msg:  fmt.Sprintf("cannot read %s: %s", path, OSMessage(err)),
	}
}

// ResourceMissing reports a bundled resource that does not exist.
func ResourceMissing(name string) *Error {
	return &Error{
		Kind: KindResourceMissing,
		Path: name,
		Err:  ErrResourceMissing,
		msg:  fmt.Sprintf("%s not there", name),
	}
}
