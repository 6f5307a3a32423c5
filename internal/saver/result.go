package saver

import (
	"errors"

	"tools.zach/dev/safesave/internal/fileerr"
)

// Result is the sticky error state of a save session. The first recorded
// failure wins; nothing clears or replaces it afterwards.
type Result struct {
	err *fileerr.Error
}

// Record stores the error produced by build when ok is false and no error
// has been stored yet. build is not called otherwise. It returns ok.
func (r *Result) Record(ok bool, build func() *fileerr.Error) bool {
	if !ok && r.err == nil {
		r.err = build()
	}
	return ok
}

// Failed reports whether a failure has been recorded.
func (r *Result) Failed() bool { return r.err != nil }

// Err returns the recorded failure, or nil.
func (r *Result) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Message returns the recorded failure's message, or "".
func (r *Result) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// ///////////////////////////////////////////////
// Producer adapters
// ///////////////////////////////////////////////

// Flusher is a buffered writer layered over a session, such as a
// *bufio.Writer.
type Flusher interface {
	Flush() error
}

// Encoder is a structured producer writing into a session, such as a
// json.Encoder, xml.Encoder, gob.Encoder or toml.Encoder.
type Encoder interface {
	Encode(v any) error
}

// SetResult records a producer's status for the file at path. A status
// that already is a file error (typically the session's own sticky write
// error surfacing through a wrapper) is kept as is.
func (r *Result) SetResult(path string, err error) bool {
	return r.Record(err == nil, func() *fileerr.Error {
		var fe *fileerr.Error
		if errors.As(err, &fe) {
			return fe
		}
		return fileerr.Write(path, err)
	})
}
