// Package saver writes single files so that readers only ever observe the
// complete old content or the complete new content.
//
// A [FileSaver] is bound to one target path. By default it writes a
// surrogate beside the target and publishes it atomically on
// [FileSaver.Finalize]; the ReadOnly and Append modes write the target
// directly instead. A [TempFileSaver] writes a uniquely named temp file.
//
// Every session keeps a sticky [Result]: the first failure is recorded,
// later writes are skipped without touching the disk, and Finalize reports
// that first failure verbatim. Callers always defer Close, which rolls back
// a session that was never finalized:
//
//	s := saver.New(path, saver.WriteOnly)
//	defer s.Close()
//	s.Write(data)
//	if err := s.Finalize(); err != nil { ... }
//
// Nothing here guards against another process saving the same target at
// the same time; the last commit wins.
package saver

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"

	"tools.zach/dev/safesave/internal/fileerr"
	"tools.zach/dev/safesave/internal/fsys"
)

// ErrFinalized is returned by writes to a session that was already
// finalized or closed.
var ErrFinalized = errors.New("save session already finalized")

// Session is the capability shared by every write strategy.
type Session interface {
	io.Writer
	io.StringWriter
	// Finalize ends the session and returns the first recorded failure.
	Finalize() error
	// Close abandons an unfinalized session. It is a no-op afterwards.
	Close() error
	Path() string
	Err() error
}

var (
	_ Session = (*FileSaver)(nil)
	_ Session = (*TempFileSaver)(nil)
)

// ///////////////////////////////////////////////
// Mode
// ///////////////////////////////////////////////

// Mode selects how the target is opened.
type Mode uint8

const (
	// ReadOnly saves in place: the target is opened read-write, without
	// truncation unless Truncate is also set.
	ReadOnly Mode = 1 << iota
	// WriteOnly is the plain atomic save.
	WriteOnly
	// Append appends to the target in place.
	Append
	// Truncate empties an in-place target when it is opened.
	Truncate
	// Text writes "\n" as the platform line ending.
	Text
)

// direct reports whether the mode bypasses the surrogate.
func (m Mode) direct() bool { return m&(ReadOnly|Append) != 0 }

func (m Mode) openFlags() int {
	flag := os.O_CREATE | os.O_WRONLY
	if m&ReadOnly != 0 {
		flag = os.O_CREATE | os.O_RDWR
	}
	if m&Append != 0 {
		flag |= os.O_APPEND
	}
	if m&Truncate != 0 {
		flag |= os.O_TRUNC
	}
	return flag
}

// crlf is set on platforms whose text files end lines with "\r\n".
var crlf = runtime.GOOS == "windows"

// ///////////////////////////////////////////////
// base
// ///////////////////////////////////////////////

// base holds what every strategy shares: the path, the sticky result and
// the open handle. w is nil when opening failed.
type base struct {
	path      string
	result    Result
	w         io.Writer
	text      bool
	finalized bool
}

// Write writes p unless a failure was already recorded, in which case it
// returns that failure without any I/O. A short write is a failure.
func (b *base) Write(p []byte) (int, error) {
	if b.finalized {
		return 0, ErrFinalized
	}
	if b.result.Failed() {
		return 0, b.result.Err()
	}
	data := p
	if b.text && crlf {
		data = bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	}
	n, err := b.w.Write(data)
	ok := err == nil && n == len(data)
	if !b.result.Record(ok, func() *fileerr.Error { return fileerr.Write(b.path, err) }) {
		return min(n, len(p)), b.result.Err()
	}
	return len(p), nil
}

// WriteString writes s.
func (b *base) WriteString(s string) (int, error) { return b.Write([]byte(s)) }

// Flush flushes a buffered writer layered over the session and records its
// status.
func (b *base) Flush(f Flusher) bool { return b.SetResult(f.Flush()) }

// Encode encodes v through enc, which writes into the session, and records
// its status.
func (b *base) Encode(enc Encoder, v any) bool { return b.SetResult(enc.Encode(v)) }

// SetResult records the status of any other producer.
func (b *base) SetResult(err error) bool { return b.result.SetResult(b.path, err) }

// Path returns the file the session writes.
func (b *base) Path() string { return b.path }

// Err returns the first recorded failure, or nil.
func (b *base) Err() error { return b.result.Err() }

// HasError reports whether a failure was recorded.
func (b *base) HasError() bool { return b.result.Failed() }

// ErrorString returns the first recorded failure's message, or "".
func (b *base) ErrorString() string { return b.result.Message() }

// ///////////////////////////////////////////////
// FileSaver
// ///////////////////////////////////////////////

// FileSaver writes one target file, atomically unless the mode asks for an
// in-place write.
type FileSaver struct {
	base
	mode    Mode
	pending fsys.PendingFile
	file    fsys.File
}

// New opens a save session for path. Open failures are recorded in the
// session rather than returned; they surface from Write and Finalize.
func New(path string, mode Mode, opts ...Option) *FileSaver {
	o := newOptions(opts)
	s := &FileSaver{base: base{path: path, text: mode&Text != 0}, mode: mode}

	if o.checkReserved && IsReservedName(path) {
		s.result.Record(false, func() *fileerr.Error { return fileerr.Reserved(path) })
		slog.Debug("save rejected", "path", path, "reason", "reserved name")
		return s
	}

	_, statErr := o.fs.Stat(path)
	existed := statErr == nil

	var err error
	if mode.direct() {
		s.file, err = o.fs.OpenFile(path, mode.openFlags(), o.perm)
		if err == nil {
			s.w = s.file
		}
	} else {
		s.pending, err = o.fs.CreatePending(path, o.perm)
		if err == nil {
			s.w = s.pending
		}
	}
	s.result.Record(err == nil, func() *fileerr.Error { return fileerr.Open(path, existed, err) })
	return s
}

// Atomic reports whether the session publishes through a surrogate.
func (s *FileSaver) Atomic() bool { return !s.mode.direct() }

// Finalize closes the session. An atomic session commits when no failure
// was recorded and rolls back otherwise; a failed commit leaves the target
// as it was. Finalizing twice returns the same result without I/O.
func (s *FileSaver) Finalize() error {
	if s.finalized {
		return s.result.Err()
	}
	s.finalized = true

	switch {
	case s.pending != nil:
		if s.result.Failed() {
			if s.pending.IsOpen() {
				if err := s.pending.Rollback(); err != nil {
					slog.Warn("rollback failed", "path", s.path, "error", err)
				}
			}
			break
		}
		err := s.pending.Commit()
		s.result.Record(err == nil, func() *fileerr.Error { return fileerr.Commit(s.path, err) })
	case s.file != nil:
		err := s.file.Close()
		s.result.Record(err == nil, func() *fileerr.Error { return fileerr.Write(s.path, err) })
	}

	if err := s.result.Err(); err != nil {
		slog.Debug("save failed", "path", s.path, "error", err)
		return err
	}
	slog.Debug("file saved", "path", s.path, "atomic", s.Atomic())
	return nil
}

// FinalizeReport finalizes the session and presents a failure through r.
func (s *FileSaver) FinalizeReport(r Reporter) error { return finalizeReport(s, r) }

// Close rolls back an unfinalized atomic session or closes an unfinalized
// direct one.
func (s *FileSaver) Close() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	if s.pending != nil && s.pending.IsOpen() {
		return s.pending.Rollback()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
