package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowtonehq/flowtone/internal/domain/routing"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
)

// ReloadFunc receives the freshly loaded rule set after a stable change.
type ReloadFunc func(set *routing.Set)

// WatcherConfig holds configuration for the rules file watcher.
type WatcherConfig struct {
	DebounceDuration time.Duration
}

// DefaultWatcherConfig returns sensible default configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DebounceDuration: 200 * time.Millisecond,
	}
}

// RulesWatcher monitors the routing rules file and reloads it when edits
// settle. A file that fails to parse keeps the previous rule set active.
type RulesWatcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	config    WatcherConfig
	onReload  ReloadFunc
	logger    *logging.Logger

	pendingMu sync.Mutex
	pendingAt time.Time
	pending   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRulesWatcher creates a watcher for the given rules file path.
func NewRulesWatcher(path string, cfg WatcherConfig, onReload ReloadFunc, logger *logging.Logger) (*RulesWatcher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultWatcherConfig().DebounceDuration
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &RulesWatcher{
		path:      path,
		fsWatcher: fsWatcher,
		config:    cfg,
		onReload:  onReload,
		logger:    logger,
	}, nil
}

// Start begins watching the rules file's directory. Watching the directory
// rather than the file survives editors that replace the file on save.
func (w *RulesWatcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(2)
	go w.processEvents(runCtx)
	go w.debounceProcessor(runCtx)
	return nil
}

// Close stops the watcher and releases resources.
func (w *RulesWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *RulesWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.pendingMu.Lock()
			w.pending = true
			w.pendingAt = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules watcher error", "error", err.Error())
		}
	}
}

func (w *RulesWatcher) debounceProcessor(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.emitIfStable()
		}
	}
}

// emitIfStable reloads the rules file once the last event is old enough.
func (w *RulesWatcher) emitIfStable() {
	w.pendingMu.Lock()
	if !w.pending || time.Since(w.pendingAt) < w.config.DebounceDuration {
		w.pendingMu.Unlock()
		return
	}
	w.pending = false
	w.pendingMu.Unlock()

	w.reload()
}

func (w *RulesWatcher) reload() {
	set, err := LoadRulesFile(w.path)
	if err != nil {
		w.logger.Warn("rules reload failed, keeping previous rules",
			"path", w.path,
			"error", err.Error(),
		)
		return
	}

	w.logger.Info("routing rules reloaded",
		"path", w.path,
		"rules", set.Len(),
	)
	if w.onReload != nil {
		w.onReload(set)
	}
}
