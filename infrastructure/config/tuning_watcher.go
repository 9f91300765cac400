package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	simconfig "particle-universe/domain/config"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TuningWatcher reloads the simulation tuning file when it changes and
// installs the result into a Provider. A tick that is already running keeps
// the copy it captured at start.
type TuningWatcher struct {
	path        string
	environment string
	provider    *simconfig.Provider
	watcher     *fsnotify.Watcher
	logger      *zap.Logger
	debounce    time.Duration

	mu       sync.Mutex
	onChange []func(*simconfig.SimulationConfig)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTuningWatcher creates a watcher for path. The provider is expected to
// already hold the configuration loaded from the same file.
func NewTuningWatcher(path, environment string, provider *simconfig.Provider, logger *zap.Logger) (*TuningWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory too, editors replace files on save
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &TuningWatcher{
		path:        path,
		environment: environment,
		provider:    provider,
		watcher:     watcher,
		logger:      logger,
		debounce:    100 * time.Millisecond,
		stopCh:      make(chan struct{}),
	}, nil
}

// OnChange registers a callback invoked after every successful reload
func (w *TuningWatcher) OnChange(fn func(*simconfig.SimulationConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins watching for changes
func (w *TuningWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("Simulation tuning watcher started", zap.String("path", w.path))
}

// Stop stops watching. It is safe to call more than once.
func (w *TuningWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.logger.Info("Simulation tuning watcher stopped")
	})
}

func (w *TuningWatcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// reload keeps the current tuning when the new file does not load or validate
func (w *TuningWatcher) reload() {
	cfg, err := simconfig.Load(w.environment, w.path)
	if err != nil {
		w.logger.Error("Failed to reload simulation tuning, keeping current",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	if err := w.provider.Update(cfg); err != nil {
		w.logger.Error("Rejected simulation tuning", zap.Error(err))
		return
	}

	w.logger.Info("Simulation tuning reloaded",
		zap.String("universeID", cfg.UniverseID),
		zap.Float64("interactionRadius", cfg.Interaction.Radius),
	)

	w.mu.Lock()
	handlers := append([]func(*simconfig.SimulationConfig){}, w.onChange...)
	w.mu.Unlock()
	for _, handler := range handlers {
		handler(cfg.Clone())
	}
}
