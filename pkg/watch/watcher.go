// Package watch triggers pipeline runs when files land in a batch directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"
)

// DefaultDebounce is the quiet period after the last change before a run.
const DefaultDebounce = 2 * time.Second

// Watcher watches one batch directory and calls OnBatch after changes
// settle. At most one OnBatch runs at a time; changes arriving during a
// run schedule exactly one follow-up run.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	sem      *semaphore.Weighted
	log      *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	wg      sync.WaitGroup

	OnBatch func(ctx context.Context) error
	OnError func(err error)
}

// NewWatcher creates a watcher for dir. A zero debounce uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat batch directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(abs); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		watcher:  fsWatcher,
		dir:      abs,
		debounce: debounce,
		sem:      semaphore.NewWeighted(1),
		log:      log.With(slog.String("dir", abs)),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run starts the watch loop. Blocks until context is cancelled, then waits
// for a run in flight.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.log.Debug("batch directory changed", slog.String("file", filepath.Base(event.Name)), slog.String("op", event.Op.String()))
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError(err)
		}
	}
}

// relevant keeps creates, writes and renames of visible files.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}

// schedule (re)arms the debounce timer. The wait group counts an armed
// timer from here, so Run's Wait covers callbacks that have not started.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.disarm()
	w.wg.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.fire(ctx)
	})
}

// disarm stops the timer. A timer stopped before firing releases its
// wait group slot here. Callers hold mu.
func (w *Watcher) disarm() {
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.timer = nil
}

func (w *Watcher) fire(ctx context.Context) {
	for ctx.Err() == nil {
		w.mu.Lock()
		if !w.sem.TryAcquire(1) {
			w.pending = true
			w.mu.Unlock()
			return
		}
		w.pending = false
		w.mu.Unlock()

		if w.OnBatch != nil {
			if err := w.OnBatch(ctx); err != nil {
				w.reportError(err)
			}
		}

		w.mu.Lock()
		w.sem.Release(1)
		again := w.pending
		w.mu.Unlock()
		if !again {
			return
		}
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarm()
}

func (w *Watcher) reportError(err error) {
	if w.OnError != nil {
		w.OnError(err)
		return
	}
	w.log.Error("watch", slog.String("error", err.Error()))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
