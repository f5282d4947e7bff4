package venue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultReloadDelay coalesces bursts of editor writes into one reload
const DefaultReloadDelay = 100 * time.Millisecond

// Watcher reloads a venues file whenever it is written and hands the new set
// to OnChange. Invalid files are logged and ignored; the previous set stays in effect.
type Watcher struct {
	path     string
	onChange func([]Venue)
	logger   *logrus.Logger
	delay    time.Duration

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for path. A zero delay uses DefaultReloadDelay.
func NewWatcher(path string, onChange func([]Venue), logger *logrus.Logger, delay time.Duration) *Watcher {
	if logger == nil {
		logger = logrus.New()
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		delay:    delay,
	}
}

// Run watches the file's directory until ctx is done.
// The directory is watched rather than the file so that atomic
// rename-over saves keep being observed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating venues watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	defer w.stopDebounce()

	name := filepath.Base(w.path)
	w.logger.WithField("path", w.path).Info("Watching venues file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Venues watcher error")
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

func (w *Watcher) reload() {
	venues, err := LoadFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Ignoring invalid venues file")
		return
	}
	w.logger.WithField("count", len(venues)).Info("Venues reloaded")
	if w.onChange != nil {
		w.onChange(venues)
	}
}
