package watcher

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"xray/internal/app/bus"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// Watcher monitors xray.yaml and re-applies the runtime-adjustable parts of
// the configuration when it changes. Only the log level is hot; everything
// else (ports, paths) requires a restart and is left untouched.
type Watcher interface {
	Start() error
	Close()
}

// watcher implements the Watcher interface
type watcher struct {
	cfg       *config.Config
	bus       bus.Bus
	fsWatcher *fsnotify.Watcher
	debouncer Debouncer
	path      string
	level     string
	mu        sync.Mutex
	closed    bool
	log       logger.Logger
}

// NewWatcher creates a new Watcher instance
func NewWatcher(cfg *config.Config, b bus.Bus, log logger.Logger) (Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &watcher{
		cfg:       cfg,
		bus:       b,
		fsWatcher: fsw,
		level:     cfg.Logging.Level,
		log:       log.WithComponent("WATCHER"),
	}

	w.debouncer = NewDebouncer(config.WatchDebounce, w.reload)

	return w, nil
}

// Start begins watching the config file's directory. Watching the directory
// instead of the file keeps the watch alive across editors that replace the
// file on save.
func (w *watcher) Start() error {
	path := w.cfg.Path()
	if path == "" {
		w.log.Debug().Msg("No config file loaded, watching disabled")

		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.path = abs

	if err := w.fsWatcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	go w.processEvents()

	w.log.Info().Msgf("Watching %s", abs)

	return nil
}

// Close stops the watcher and releases resources
func (w *watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.closed = true
	w.debouncer.Stop()
	w.fsWatcher.Close()
}

// processEvents handles fsnotify events for the config file
func (w *watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

			w.log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// handleEvent triggers the debouncer for events touching the config file
func (w *watcher) handleEvent(event fsnotify.Event) {
	if !isRelevantEvent(event) {
		return
	}

	if filepath.Clean(event.Name) != w.path {
		return
	}

	w.debouncer.Trigger()
}

// reload re-reads the config file and applies the hot-reloadable settings
func (w *watcher) reload() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()

	if closed {
		return
	}

	fresh, err := config.LoadFile(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("Config reload failed, keeping current settings")

		return
	}

	// the applied level lives on the watcher, never written back into the
	// shared config, which other goroutines read unsynchronized
	w.mu.Lock()
	changed := fresh.Logging.Level != w.level
	w.level = fresh.Logging.Level
	w.mu.Unlock()

	if changed {
		w.log.SetLevel(fresh.Logging.Level)
		w.log.Info().Msgf("Log level changed to %s", fresh.Logging.Level)
	}

	w.bus.Publish(bus.Message{
		Type: bus.EventConfigReloaded,
		Data: bus.ConfigReloaded{Level: fresh.Logging.Level},
	})
}

// isRelevantEvent returns true if the event should trigger a reload
func isRelevantEvent(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename)
}
