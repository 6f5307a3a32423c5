// Package watch reports changes another process makes to a saved file:
// whether it was replaced by a new file (an atomic save elsewhere), modified
// in place, removed or created. Replacement is detected by comparing file
// identity keys, so it works regardless of timestamps.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"tools.zach/dev/safesave/internal/fileid"
)

// DefaultPollInterval is the stat interval when fsnotify is unavailable.
const DefaultPollInterval = 2 * time.Second

// eventBuffer is the number of undelivered events kept before new ones are
// dropped.
const eventBuffer = 16

// ///////////////////////////////////////////////
// Events
// ///////////////////////////////////////////////

// Kind classifies a change.
type Kind int

const (
	// Modified means the same file now has different contents or metadata.
	Modified Kind = iota + 1
	// Replaced means the path now names a different file.
	Replaced
	// Removed means the path no longer exists.
	Removed
	// Created means the path exists again after being absent.
	Created
)

// String returns the lower-case name of k.
func (k Kind) String() string {
	switch k {
	case Modified:
		return "modified"
	case Replaced:
		return "replaced"
	case Removed:
		return "removed"
	case Created:
		return "created"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one observed change to the watched path.
type Event struct {
	Path string
	Kind Kind
}

// snapshot is what the watcher last knew about the file.
type snapshot struct {
	exists bool
	key    string
	mod    time.Time
	size   int64
}

func take(path string) snapshot {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}
	}
	return snapshot{exists: true, key: fileid.Key(path), mod: info.ModTime(), size: info.Size()}
}

// classify compares two snapshots. ok is false when nothing changed.
func classify(prev, cur snapshot) (kind Kind, ok bool) {
	switch {
	case !prev.exists && !cur.exists:
		return 0, false
	case prev.exists && !cur.exists:
		return Removed, true
	case !prev.exists:
		return Created, true
	case prev.key != "" && cur.key != "" && prev.key != cur.key:
		return Replaced, true
	case !prev.mod.Equal(cur.mod) || prev.size != cur.size:
		return Modified, true
	default:
		return 0, false
	}
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors one file path using fsnotify on its directory, with a
// polling fallback. Watching the directory keeps the watch alive across
// atomic replacement of the file.
type Watcher struct {
	// path is the absolute path being monitored.
	path string
	// events delivers classified changes.
	events chan Event
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}
	// fsw is the underlying fsnotify watcher; nil when polling.
	fsw *fsnotify.Watcher
	// once ensures [Watcher.Close] is idempotent.
	once sync.Once
	// polling is true when the watcher has fallen back to stat-based polling.
	polling atomic.Bool
	// pollInterval is the duration between stat calls in polling mode.
	pollInterval time.Duration

	// mu protects last.
	mu sync.Mutex
	// last is the state the next check is compared against.
	last snapshot
}

// New watches path. The file need not exist yet, but its directory must.
func New(path string) (*Watcher, error) {
	return newWatcher(path, DefaultPollInterval, false)
}

func newWatcher(path string, interval time.Duration, forcePoll bool) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", abs, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("watching %s: %s is not a directory", abs, dir)
	}

	w := &Watcher{
		path:         abs,
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
		pollInterval: interval,
		last:         take(abs),
	}

	if forcePoll {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		slog.Info("cannot watch directory, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}
	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns the channel of observed changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil && !errors.Is(closeErr, fs.ErrClosed) {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// watch forwards fsnotify events for the watched name to [Watcher.check].
// On an fsnotify error it switches to polling.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == w.path {
				w.check()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.startPolling()
			return
		}
	}
}

// poll re-checks the file every pollInterval until Close.
func (w *Watcher) poll() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check compares the file with the last snapshot and emits an event when
// it changed.
func (w *Watcher) check() {
	cur := take(w.path)

	w.mu.Lock()
	kind, changed := classify(w.last, cur)
	w.last = cur
	w.mu.Unlock()

	if !changed {
		return
	}
	slog.Debug("watched file changed", "path", w.path, "kind", kind.String())
	select {
	case w.events <- Event{Path: w.path, Kind: kind}:
	case <-w.done:
	default:
		slog.Warn("watch event dropped, consumer is behind", "path", w.path, "kind", kind.String())
	}
}
