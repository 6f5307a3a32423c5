package saver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/safesave/internal/fileerr"
	"tools.zach/dev/safesave/internal/fsys"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// ///////////////////////////////////////////////
// Atomic strategy
// ///////////////////////////////////////////////

func TestFileSaver_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.bin")
	payload := bytes.Repeat([]byte{0x00, 0xff, 'x', '\n'}, 1024)

	s := New(path, WriteOnly)
	defer s.Close()
	assert.True(t, s.Atomic())
	for chunk := range slicesChunk(payload, 100) {
		n, err := s.Write(chunk)
		require.NoError(t, err)
		require.Equal(t, len(chunk), n)
	}
	require.NoError(t, s.Finalize())

	assert.Equal(t, string(payload), readFile(t, path))
	assert.Equal(t, []string{"target.bin"}, dirNames(t, dir))
	assert.False(t, s.HasError())
	assert.Empty(t, s.ErrorString())
}

func slicesChunk(b []byte, n int) func(func([]byte) bool) {
	return func(yield func([]byte) bool) {
		for len(b) > 0 {
			k := min(n, len(b))
			if !yield(b[:k]) {
				return
			}
			b = b[k:]
		}
	}
}

func TestFileSaver_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.txt")
	require.NoError(t, os.WriteFile(path, []byte("a much longer original body"), 0o644))

	s := New(path, WriteOnly)
	defer s.Close()
	_, err := s.WriteString("short")
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	assert.Equal(t, "short", readFile(t, path))
}

func TestFileSaver_NewFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are coarse on Windows")
	}
	path := filepath.Join(t.TempDir(), "private.txt")

	s := New(path, WriteOnly, WithPerm(0o600))
	defer s.Close()
	_, err := s.WriteString("secret")
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileSaver_WriteFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("target.txt", fsys.Fault{FailAfterBytes: 1})

	s := New(path, WriteOnly, WithFS(ffs))
	defer s.Close()
	_, err := s.WriteString("hi")
	require.Error(t, err)

	err = s.Finalize()
	require.Error(t, err)
	assert.Equal(t, fileerr.KindWrite, fileerr.KindOf(err))
	assert.Contains(t, err.Error(), path)
	assert.Equal(t, "hello", readFile(t, path))
	assert.Equal(t, []string{"target.txt"}, dirNames(t, dir))
}

func TestFileSaver_ShortWriteIsDiskFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.txt")
	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("target.txt", fsys.Fault{FailAfterBytes: 1, ShortWrite: true})

	s := New(path, WriteOnly, WithFS(ffs))
	defer s.Close()
	n, err := s.WriteString("hi")
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, fileerr.ErrShortWrite)

	err = s.Finalize()
	assert.EqualError(t, err, "cannot write file "+path+": disk full?")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "a failed first save must not create the target")
}

func TestFileSaver_CommitFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("target.txt", fsys.Fault{FailOnCommit: true})

	s := New(path, WriteOnly, WithFS(ffs))
	defer s.Close()
	_, err := s.WriteString("replacement")
	require.NoError(t, err)

	err = s.Finalize()
	require.Error(t, err)
	assert.Equal(t, fileerr.KindCommit, fileerr.KindOf(err))
	assert.Equal(t, "cannot replace file "+path+": "+fsys.ErrInjected.Error(), err.Error())
	assert.Equal(t, "hello", readFile(t, path))
	assert.Equal(t, []string{"target.txt"}, dirNames(t, dir))
}

func TestFileSaver_NoPartialVisibility(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.txt")
	oldBody := bytes.Repeat([]byte("a"), 64*1024)
	newBody := bytes.Repeat([]byte("b"), 96*1024)
	require.NoError(t, os.WriteFile(path, oldBody, 0o644))

	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("target.txt", fsys.Fault{CommitDelay: 50 * time.Millisecond})

	var (
		stop    atomic.Bool
		wg      sync.WaitGroup
		samples atomic.Int64
		bad     atomic.Value
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			data, err := os.ReadFile(path)
			if err != nil {
				// Windows may refuse the read while the target is replaced.
				continue
			}
			samples.Add(1)
			if !bytes.Equal(data, oldBody) && !bytes.Equal(data, newBody) {
				bad.Store(len(data))
			}
		}
	}()

	s := New(path, WriteOnly, WithFS(ffs))
	for chunk := range slicesChunk(newBody, 4096) {
		_, err := s.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, s.Finalize())
	time.Sleep(10 * time.Millisecond)
	stop.Store(true)
	wg.Wait()

	assert.Nil(t, bad.Load(), "observed a partially written target")
	assert.Positive(t, samples.Load())
	assert.Equal(t, string(newBody), readFile(t, path))
}

func TestFileSaver_CloseWithoutFinalizeRollsBack(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "kept.txt")
	fresh := filepath.Join(dir, "fresh.txt")
	require.NoError(t, os.WriteFile(existing, []byte("hello"), 0o644))

	for _, path := range []string{existing, fresh} {
		s := New(path, WriteOnly)
		_, err := s.WriteString("abandoned")
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
	}

	assert.Equal(t, "hello", readFile(t, existing))
	assert.Equal(t, []string{"kept.txt"}, dirNames(t, dir))
}

func TestFileSaver_FinalizeTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.txt")
	s := New(path, WriteOnly)
	_, err := s.WriteString("once")
	require.NoError(t, err)
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Finalize())

	_, err = s.WriteString("late")
	assert.ErrorIs(t, err, ErrFinalized)
	assert.NoError(t, s.Close())
	assert.Equal(t, "once", readFile(t, path))
}

// ///////////////////////////////////////////////
// Sticky error
// ///////////////////////////////////////////////

func TestFileSaver_StickyFirstError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.txt")
	first := errors.New("first failure")

	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("target.txt", fsys.Fault{FailAfterBytes: 1, Err: first})

	s := New(path, WriteOnly, WithFS(ffs))
	defer s.Close()

	_, err := s.WriteString("hi")
	require.ErrorIs(t, err, first)
	msg := s.ErrorString()
	writes := ffs.Writes()

	n, err := s.WriteString("more data")
	assert.Zero(t, n)
	assert.ErrorIs(t, err, first)
	assert.Equal(t, writes, ffs.Writes(), "no I/O after the first failure")

	assert.False(t, s.SetResult(errors.New("second failure")))
	err = s.Finalize()
	assert.EqualError(t, err, msg)
	assert.Equal(t, "cannot write file "+path+": first failure", msg)
}

func TestResult_RecordKeepsFirst(t *testing.T) {
	var r Result
	calls := 0
	build := func(p string) func() *fileerr.Error {
		return func() *fileerr.Error { calls++; return fileerr.Write(p, nil) }
	}

	assert.True(t, r.Record(true, build("a")))
	assert.False(t, r.Failed())
	assert.NoError(t, r.Err())

	assert.False(t, r.Record(false, build("a")))
	assert.False(t, r.Record(false, build("b")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "cannot write file a: disk full?", r.Message())
}

// ///////////////////////////////////////////////
// Open errors
// ///////////////////////////////////////////////

func TestFileSaver_ReservedName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CON.txt")

	s := New(path, WriteOnly, WithReservedNameCheck(true))
	defer s.Close()

	require.True(t, s.HasError())
	assert.ErrorIs(t, s.Err(), fileerr.ErrReservedName)
	assert.Equal(t, path+": is a reserved filename on Windows, cannot save", s.ErrorString())

	_, err := s.WriteString("x")
	assert.ErrorIs(t, err, fileerr.ErrReservedName)
	assert.ErrorIs(t, s.Finalize(), fileerr.ErrReservedName)
	assert.Empty(t, dirNames(t, dir), "no surrogate may be created")
}

func TestFileSaver_ReservedNameCheckOff(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("CON is a device on Windows")
	}
	path := filepath.Join(t.TempDir(), "con.txt")
	s := New(path, WriteOnly, WithReservedNameCheck(false))
	defer s.Close()
	_, err := s.WriteString("fine")
	require.NoError(t, err)
	require.NoError(t, s.Finalize())
}

func TestIsReservedName(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"CON", true},
		{"con.txt", true},
		{`C:\work\Nul.tar.gz`, true},
		{"/home/u/aux", true},
		{"COM1.log", true},
		{"LPT9", true},
		{"COM0", false},
		{"LPT10", false},
		{"console.txt", false},
		{"my.con", false},
		{".con", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReservedName(tt.path))
		})
	}
}

func TestFileSaver_OpenErrorWording(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "locked.txt")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("locked.txt", fsys.Fault{FailOnOpen: true})

	s := New(existing, WriteOnly, WithFS(ffs))
	defer s.Close()
	assert.Equal(t, "cannot overwrite file "+existing+": "+fsys.ErrInjected.Error(), s.ErrorString())
	assert.Equal(t, fileerr.KindOpen, fileerr.KindOf(s.Err()))

	missing := filepath.Join(dir, "no-such-dir", "new.txt")
	s2 := New(missing, WriteOnly)
	defer s2.Close()
	require.True(t, s2.HasError())
	assert.Contains(t, s2.ErrorString(), "cannot create file "+missing+": ")
}

func TestFileSaver_ReadOnlyTargetRefused(t *testing.T) {
	if runtime.GOOS != "windows" && os.Geteuid() == 0 {
		t.Skip("root may write read-only files")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "locked.txt")
	require.NoError(t, os.WriteFile(path, []byte("protected"), 0o444))
	t.Cleanup(func() { os.Chmod(path, 0o644) })

	tests := []struct {
		name string
		mode Mode
	}{
		{"atomic", WriteOnly},
		{"in place", ReadOnly | Truncate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(path, tt.mode)
			defer s.Close()
			s.WriteString("clobbered")
			err := s.Finalize()
			require.Error(t, err)
			assert.Equal(t, fileerr.KindOpen, fileerr.KindOf(err))
			assert.ErrorIs(t, err, os.ErrPermission)
			assert.Contains(t, s.ErrorString(), "cannot overwrite file "+path)
			assert.Equal(t, "protected", readFile(t, path))
		})
	}
	assert.Equal(t, []string{"locked.txt"}, dirNames(t, dir))
}

func TestFileSaver_SaveThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dotfile")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	s := New(link, WriteOnly)
	defer s.Close()
	_, err := s.WriteString("new")
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	assert.Equal(t, "new", readFile(t, target))
}

// ///////////////////////////////////////////////
// Direct strategy
// ///////////////////////////////////////////////

func TestFileSaver_Append(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.log")
	require.NoError(t, os.WriteFile(path, []byte("one\n"), 0o644))

	s := New(path, WriteOnly|Append)
	defer s.Close()
	assert.False(t, s.Atomic())
	_, err := s.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	assert.Equal(t, "one\ntwo\n", readFile(t, path))
	assert.Equal(t, []string{"journal.log"}, dirNames(t, dir))
}

func TestFileSaver_InPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.dat")

	tests := []struct {
		name string
		mode Mode
		want string
	}{
		{"overlay", ReadOnly, "HELLO world"},
		{"truncate", ReadOnly | Truncate, "HELLO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
			s := New(path, tt.mode)
			defer s.Close()
			_, err := s.WriteString("HELLO")
			require.NoError(t, err)
			require.NoError(t, s.Finalize())
			assert.Equal(t, tt.want, readFile(t, path))
		})
	}
}

func TestFileSaver_DirectCloseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.log")
	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("target.log", fsys.Fault{FailOnClose: true})

	s := New(path, Append, WithFS(ffs))
	_, err := s.WriteString("x")
	require.NoError(t, err)
	err = s.Finalize()
	assert.Equal(t, fileerr.KindWrite, fileerr.KindOf(err))
}

func TestFileSaver_TextMode(t *testing.T) {
	orig := crlf
	t.Cleanup(func() { crlf = orig })

	dir := t.TempDir()
	for _, native := range []bool{false, true} {
		crlf = native
		path := filepath.Join(dir, "text.txt")
		s := New(path, WriteOnly|Text)
		n, err := s.WriteString("a\nb\n")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		require.NoError(t, s.Finalize())

		want := "a\nb\n"
		if native {
			want = "a\r\nb\r\n"
		}
		assert.Equal(t, want, readFile(t, path))
	}
}

// ///////////////////////////////////////////////
// Producer adapters
// ///////////////////////////////////////////////

func TestFileSaver_BufferedText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	s := New(path, WriteOnly)
	defer s.Close()

	bw := bufio.NewWriter(s)
	_, _ = bw.WriteString("line one\nline two\n")
	assert.True(t, s.Flush(bw))
	require.NoError(t, s.Finalize())
	assert.Equal(t, "line one\nline two\n", readFile(t, path))
}

func TestFileSaver_BufferedFailureKeepsSessionError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	ffs := fsys.NewFaultyFS(nil)
	ffs.AddRule("notes.txt", fsys.Fault{FailOnWrite: true})

	s := New(path, WriteOnly, WithFS(ffs))
	defer s.Close()
	bw := bufio.NewWriter(s)
	_, _ = bw.WriteString("lost")
	assert.False(t, s.Flush(bw))

	err := s.Finalize()
	assert.Equal(t, "cannot write file "+path+": "+fsys.ErrInjected.Error(), err.Error())
}

func TestFileSaver_Encoders(t *testing.T) {
	type doc struct {
		XMLName xml.Name `json:"-" toml:"-" xml:"doc"`
		Title   string   `json:"title" toml:"title" xml:"title"`
		Count   int      `json:"count" toml:"count" xml:"count"`
	}
	v := doc{Title: "report", Count: 3}
	dir := t.TempDir()

	tests := []struct {
		name string
		enc  func(s *FileSaver) Encoder
		want string
	}{
		{"json", func(s *FileSaver) Encoder { return json.NewEncoder(s) }, "{\"title\":\"report\",\"count\":3}\n"},
		{"xml", func(s *FileSaver) Encoder { return xml.NewEncoder(s) }, "<doc><title>report</title><count>3</count></doc>"},
		{"toml", func(s *FileSaver) Encoder { return toml.NewEncoder(s) }, "title = \"report\"\ncount = 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "doc."+tt.name)
			s := New(path, WriteOnly)
			defer s.Close()
			assert.True(t, s.Encode(tt.enc(s), v))
			require.NoError(t, s.Finalize())
			assert.Equal(t, tt.want, readFile(t, path))
		})
	}
}

func TestFileSaver_SetResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.txt")
	s := New(path, WriteOnly)
	defer s.Close()

	assert.True(t, s.SetResult(nil))
	assert.False(t, s.SetResult(errors.New("producer broke")))
	assert.EqualError(t, s.Finalize(), "cannot write file "+path+": producer broke")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// ///////////////////////////////////////////////
// Reporting
// ///////////////////////////////////////////////

func TestFinalizeReport(t *testing.T) {
	var titles, messages []string
	r := ReporterFunc(func(title, message string) {
		titles = append(titles, title)
		messages = append(messages, message)
	})

	ok := New(filepath.Join(t.TempDir(), "ok.txt"), WriteOnly)
	require.NoError(t, ok.FinalizeReport(r))
	assert.Empty(t, messages)

	bad := New(filepath.Join(t.TempDir(), "NUL"), WriteOnly, WithReservedNameCheck(true))
	err := bad.FinalizeReport(r)
	require.Error(t, err)
	assert.Equal(t, []string{ErrorTitle}, titles)
	assert.Equal(t, []string{err.Error()}, messages)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	LogReporter{Logger: slogTo(&buf)}.ReportError(ErrorTitle, "cannot write file x: disk full?")
	assert.Contains(t, buf.String(), "cannot write file x: disk full?")
	assert.Contains(t, buf.String(), "File Error")
}
