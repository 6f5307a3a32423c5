package fsys

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrInjected is the error returned by injected faults that set no Err.
var ErrInjected = errors.New("injected fault")

// Fault defines the failure behaviour for files whose name matches a rule.
type Fault struct {
	FailOnOpen  bool
	FailOnWrite bool
	// FailAfterBytes lets this many bytes through per file, then fails the
	// write that crosses the limit after storing the bytes that still fit.
	// Zero disables the limit.
	FailAfterBytes int64
	// ShortWrite makes the limit report a short count with a nil error, the
	// way a full disk can.
	ShortWrite   bool
	FailOnClose  bool
	FailOnCommit bool
	// CommitDelay is slept before a pending file is published.
	CommitDelay time.Duration
	// BeforeCommit runs after CommitDelay, right before publication.
	BeforeCommit func()
	Err          error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that injects errors by file name.
type FaultyFS struct {
	FS FileSystem

	mu     sync.Mutex
	rules  map[string]Fault
	writes int64
}

// NewFaultyFS creates a FaultyFS wrapping fs, or [Default] when fs is nil.
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{FS: fs, rules: make(map[string]Fault)}
}

// AddRule injects fault into every file whose name contains pattern. When
// several patterns match, the longest one wins.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// Writes returns how many Write calls reached a file opened through f.
func (f *FaultyFS) Writes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fault Fault
	best := -1
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) && len(pattern) > best {
			fault, best = rule, len(pattern)
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	fault := f.faultFor(name)
	if fault.FailOnOpen {
		return nil, &os.PathError{Op: "open", Path: name, Err: fault.err()}
	}
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, w: faultyWriter{fs: f, fault: fault, inner: file}}, nil
}

func (f *FaultyFS) CreateTemp(dir, pattern string) (File, error) {
	fault := f.faultFor(dir + string(os.PathSeparator) + pattern)
	if fault.FailOnOpen {
		return nil, &os.PathError{Op: "createtemp", Path: dir, Err: fault.err()}
	}
	file, err := f.FS.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, w: faultyWriter{fs: f, fault: fault, inner: file}}, nil
}

func (f *FaultyFS) CreatePending(path string, perm os.FileMode) (PendingFile, error) {
	fault := f.faultFor(path)
	if fault.FailOnOpen {
		return nil, &os.PathError{Op: "open", Path: path, Err: fault.err()}
	}
	p, err := f.FS.CreatePending(path, perm)
	if err != nil {
		return nil, err
	}
	return &faultyPending{PendingFile: p, target: path, w: faultyWriter{fs: f, fault: fault, inner: p}}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

// ///////////////////////////////////////////////
// Wrapped files
// ///////////////////////////////////////////////

type faultyWriter struct {
	fs      *FaultyFS
	fault   Fault
	inner   interface{ Write([]byte) (int, error) }
	written int64
}

func (fw *faultyWriter) Write(p []byte) (int, error) {
	fw.fs.mu.Lock()
	fw.fs.writes++
	fw.fs.mu.Unlock()

	if fw.fault.FailOnWrite {
		return 0, fw.fault.err()
	}
	limit := fw.fault.FailAfterBytes
	if limit > 0 && fw.written+int64(len(p)) > limit {
		allowed := max(limit-fw.written, 0)
		n, err := fw.inner.Write(p[:allowed])
		fw.written += int64(n)
		if err != nil {
			return n, err
		}
		if fw.fault.ShortWrite {
			return n, nil
		}
		return n, fw.fault.err()
	}
	n, err := fw.inner.Write(p)
	fw.written += int64(n)
	return n, err
}

type faultyFile struct {
	File
	w faultyWriter
}

func (ff *faultyFile) Write(p []byte) (int, error) { return ff.w.Write(p) }

func (ff *faultyFile) Close() error {
	if ff.w.fault.FailOnClose {
		ff.File.Close()
		return ff.w.fault.err()
	}
	return ff.File.Close()
}

type faultyPending struct {
	PendingFile
	target string
	w      faultyWriter
}

func (fp *faultyPending) Write(p []byte) (int, error) { return fp.w.Write(p) }

func (fp *faultyPending) Commit() error {
	fault := fp.w.fault
	if fault.CommitDelay > 0 {
		time.Sleep(fault.CommitDelay)
	}
	if fault.BeforeCommit != nil {
		fault.BeforeCommit()
	}
	if fault.FailOnCommit {
		fp.PendingFile.Rollback()
		return &os.LinkError{Op: "rename", Old: fp.Name(), New: fp.target, Err: fault.err()}
	}
	return fp.PendingFile.Commit()
}
