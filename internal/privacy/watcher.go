package privacy

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/logger"
)

// DefaultReloadDebounce is how long the watcher waits for writes to settle.
const DefaultReloadDebounce = 500 * time.Millisecond

// Watcher recompiles the rules file when it changes and hands complete
// catalogs to OnReload. A file that fails to load is logged and ignored, so
// the previous catalog stays in service.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Catalog)
	onError  func(error)
	opts     []CatalogOption
	logger   *logger.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the rules file at path.
func NewWatcher(path string, debounce time.Duration, onReload func(*Catalog), log *logger.Logger, opts ...CatalogOption) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	return &Watcher{
		path:     path,
		debounce: debounce,
		onReload: onReload,
		opts:     opts,
		logger:   log,
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnError registers a callback for failed reloads. It must be set before
// Start.
func (w *Watcher) OnError(fn func(error)) {
	w.onError = fn
}

// Start begins watching. Editors often replace files rather than write them
// in place, so the parent directory is watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.running = true

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and releases the underlying file handles.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return

		case <-w.stopCh:
			stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				stopTimer()
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			}

		case <-timerCh:
			timerCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Rules watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	catalog, err := LoadCatalog(w.path, w.opts...)
	if err != nil {
		w.logger.Error("Rules reload failed, keeping current rules",
			zap.String("path", w.path),
			zap.Error(err))
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.logger.Info("Rules reloaded",
		zap.String("path", w.path),
		zap.Int("standalone_rules", len(catalog.standalone)),
		zap.Int("combinatorial_rules", len(catalog.combinatorial)))

	if w.onReload != nil {
		w.onReload(catalog)
	}
}
