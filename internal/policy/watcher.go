package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounceTimeout coalesces bursts of file events into one reload.
// Editors commonly emit several writes per save.
const DefaultDebounceTimeout = 500 * time.Millisecond

// ReloadEvent describes the outcome of one reload triggered by file changes.
type ReloadEvent struct {
	Time  time.Time
	Names []string
	Err   error
}

// Watcher reloads the policy store when documents under a directory change.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	loader  *Loader
	store   Store
	logger  *zap.Logger

	mu       sync.RWMutex
	debounce time.Duration
	timer    *time.Timer
	watching bool

	events   chan ReloadEvent
	stopChan chan struct{}
}

// NewWatcher creates a watcher that reloads policies from dir into store.
func NewWatcher(dir string, store Store, loader *Loader, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		loader:   loader,
		store:    store,
		logger:   logger,
		debounce: DefaultDebounceTimeout,
		events:   make(chan ReloadEvent, 10),
		stopChan: make(chan struct{}),
	}, nil
}

// Events reports completed reloads. The channel is never closed; callers
// should stop draining it after Stop.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// SetDebounceTimeout adjusts how long the watcher waits after the last file
// event before reloading.
func (w *Watcher) SetDebounceTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// IsWatching reports whether the watch loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// Watch starts watching the policy directory until ctx is cancelled or Stop
// is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return fmt.Errorf("already watching %s", w.dir)
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.Info("watching policy directory", zap.String("dir", w.dir))
	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" && ext != ".json" {
				continue
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", zap.Error(err))
		}
	}
}

// handleEvent restarts the debounce timer so a burst of writes reloads once.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.logger.Debug("policy file changed",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.performReload)
}

func (w *Watcher) performReload() {
	w.logger.Info("reloading policies", zap.String("dir", w.dir))

	names, err := ReloadDirectory(w.dir, w.loader, nil, w.store)
	if err != nil {
		w.logger.Error("policy reload failed", zap.Error(err))
		w.emit(ReloadEvent{Time: time.Now(), Err: err})
		return
	}

	w.logger.Info("policies reloaded", zap.Int("count", len(names)))
	w.emit(ReloadEvent{Time: time.Now(), Names: names})
}

// emit never blocks. A reload finishing after Stop, or a full buffer, drops
// the event instead of wedging the debounce goroutine.
func (w *Watcher) emit(event ReloadEvent) {
	select {
	case w.events <- event:
	case <-w.stopChan:
	default:
		w.logger.Warn("reload event dropped, channel full")
	}
}

// Stop ends the watch loop. The events channel stays open so a reload racing
// with Stop cannot panic on send.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return nil
	}
	w.watching = false
	close(w.stopChan)
	if w.timer != nil {
		w.timer.Stop()
	}
	return w.watcher.Close()
}
