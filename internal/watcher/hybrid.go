package watcher

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

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// Watcher watches a data root with fsnotify, falling back to polling, and
// emits debounced batches of record events.
type Watcher struct {
	fsWatcher   *fsnotify.Watcher
	useFsnotify bool
	debouncer   *Debouncer
	events      chan []RecordEvent
	errors      chan error
	stopCh      chan struct{}
	stopOnce    sync.Once
	root        string
	opts        Options
	logger      *slog.Logger
	mu          sync.RWMutex
	stopped     bool
}

// New creates a watcher. fsnotify is used unless it cannot be initialised
// or opts.ForcePolling is set.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	w := &Watcher{
		debouncer: NewDebouncer(opts.DebounceWindow, opts.Clock),
		events:    make(chan []RecordEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
		logger:    opts.Logger,
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			w.useFsnotify = true
		} else {
			w.logger.Warn("fsnotify_unavailable_using_polling", slog.String("error", err.Error()))
		}
	}
	return w, nil
}

// Start watches root until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		return serrors.New(serrors.ErrCodeFileNotFound, fmt.Sprintf("data root is not a directory: %s", absPath), err)
	}

	w.mu.Lock()
	w.root = absPath
	w.mu.Unlock()

	go w.forwardDebouncedEvents(ctx)

	w.logger.Info("watcher_started",
		slog.String("root", absPath),
		slog.String("mode", w.Mode()))

	if w.useFsnotify {
		return w.startFsnotify(ctx)
	}
	return w.startPolling(ctx)
}

func (w *Watcher) startFsnotify(ctx context.Context) error {
	if err := w.addTypeDirs(); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) startPolling(ctx context.Context) error {
	poller, err := NewPoller(w.root)
	if err != nil {
		return err
	}

	ticker := w.opts.Clock.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	err = poller.Run(ctx, ticker.Chan(), w.stopCh, w.debouncer.Add, w.emitError)
	if ctx.Err() != nil {
		_ = w.Stop()
	}
	return err
}

// handleFsnotifyEvent converts and filters fsnotify events.
func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 && w.isTypeDir(event.Name) {
		w.watchTypeDir(event.Name)
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}

	if ev, ok := newEvent(w.root, event.Name, op, time.Now()); ok {
		w.debouncer.Add(ev)
	}
}

// isTypeDir reports whether path is a non-hidden directory directly below
// the root.
func (w *Watcher) isTypeDir(path string) bool {
	if filepath.Dir(path) != w.root || strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// watchTypeDir adds a new type directory and reports files written into
// it before the watch was in place.
func (w *Watcher) watchTypeDir(dir string) {
	if err := w.fsWatcher.Add(dir); err != nil {
		w.emitError(fmt.Errorf("watch %s: %w", dir, err))
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, entry := range entries {
		if ev, ok := newEvent(w.root, filepath.Join(dir, entry.Name()), OpCreate, now); ok {
			w.debouncer.Add(ev)
		}
	}
}

// addTypeDirs watches the root and every type directory in it.
func (w *Watcher) addTypeDirs() error {
	if err := w.fsWatcher.Add(w.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := w.fsWatcher.Add(filepath.Join(w.root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// forwardDebouncedEvents forwards debounced batches to the output channel.
func (w *Watcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			w.emitEvents(ctx, events)
		}
	}
}

// emitEvents hands a batch to the consumer, waiting while it is busy.
func (w *Watcher) emitEvents(ctx context.Context, events []RecordEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- events:
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

// emitError sends an error to the error channel, dropping it if full.
func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

// Stop stops the watcher and releases resources.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		defer w.mu.Unlock()
		w.stopped = true

		w.debouncer.Stop()
		if w.fsWatcher != nil {
			_ = w.fsWatcher.Close()
		}
		close(w.events)
		close(w.errors)
	})
	return nil
}

// Events returns the channel of debounced batches.
func (w *Watcher) Events() <-chan []RecordEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute data root being watched.
func (w *Watcher) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}
