// Package config provides a configuration manager that loads and watches a
// JSON presets file.
//
// Presets hold the knobs operators tune at runtime: worker pool size, render
// setting defaults, and the caption style preset. The file is hot-reloaded,
// so a deployment can be resized without restarting the daemon.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/clipforge/clipforge/internal/jobs"
	"github.com/fsnotify/fsnotify"
)

// DefaultWorkers is the worker pool size when no presets file sets one.
const DefaultWorkers = 2

// Provider is an interface that defines methods to access configuration values.
type Provider interface {
	Workers() int
	Defaults() jobs.Settings
}

// Conf represents the presets file structure.
type Conf struct {
	Workers      int           `json:"workers"`
	Defaults     jobs.Settings `json:"defaults"`
	CaptionStyle string        `json:"captionStyle"`
}

// Manager is a struct that manages the presets configuration.
type Manager struct {
	config     Conf
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

func defaultConf() Conf {
	return Conf{
		Workers:  DefaultWorkers,
		Defaults: jobs.DefaultSettings(),
	}
}

// New creates a new configuration manager with the specified path.
// An empty path means no presets file: built-in defaults are used and Watch never fires.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		config:     defaultConf(),
		configPath: path,
		log:        opts.Logger,
	}
}

// Load reads the presets from the configured file and updates the internal state.
// Fields absent from the file keep their built-in defaults.
func (cm *Manager) Load() error {
	if cm.configPath == "" {
		cm.log.Info("No presets file configured, using built-in defaults")
		return nil
	}

	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening presets file: %w", err)
	}
	defer file.Close()

	newConfig := defaultConf()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding presets JSON: %w", err)
	}
	if newConfig.Workers <= 0 {
		newConfig.Workers = DefaultWorkers
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.lock.Unlock()

	cm.log.Info("Presets loaded", "config", newConfig)
	return nil
}

// Watch starts watching the presets file for changes.
//
// It returns two channels: one for changes which result in a successful load
// and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if cm.configPath == "" {
		go func() {
			defer close(changesCh)
			defer close(errorsCh)
			<-ctx.Done()
		}()
		return changesCh, errorsCh, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching presets directory", "dir", configDir)

	// Initial load of the presets
	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial presets", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Presets watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if event.Name != cm.configPath {
					continue
				}

				cm.log.Debug("Presets file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading presets", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Workers returns the configured worker pool size.
func (cm *Manager) Workers() int {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.Workers
}

// Defaults returns the render setting defaults applied to incoming jobs.
func (cm *Manager) Defaults() jobs.Settings {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.Defaults
}

// CaptionStyle returns the path to the caption style preset, or "" for the built-in style.
func (cm *Manager) CaptionStyle() string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.CaptionStyle
}
