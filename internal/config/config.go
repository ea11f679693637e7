// Package config loads engine tuning knobs from a config file: write-ahead
// log capacity, checkpoint high-water mark, sync-thread interval, declared
// b-indices, and the default source-preference order. It follows the
// teacher's internal/config shape — a package-level viper singleton, a
// nil-safe Get* surface, and a watched config file — generalized from
// config.yaml's issue-tracker settings to s4's storage-engine settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the resolved set of engine tuning knobs, after defaults,
// file values, and environment overrides have all been merged by viper.
type Config struct {
	// LogCapacity is the write-ahead log's ring-buffer size in bytes.
	LogCapacity int64
	// CheckpointHighWater triggers a checkpoint once the log has grown
	// past this many bytes since the last one.
	CheckpointHighWater int64
	// SyncInterval is how often the background sync goroutine checkpoints
	// even if CheckpointHighWater hasn't been reached.
	SyncInterval time.Duration
	// BIndices lists the keys to declare a b-index for on Open.
	BIndices []string
	// SourcePreference lists source names from highest to lowest priority
	// for projection when a column has conflicting values from multiple
	// sources.
	SourcePreference []string
}

const (
	defaultLogCapacity         = 64 << 20
	defaultCheckpointHighWater = 16 << 20
	defaultSyncInterval        = 30 * time.Second
)

var v *viper.Viper

// Load reads configPath (a YAML or TOML file, picked by extension) via a
// fresh viper instance, applies S4_-prefixed environment variable
// overrides, and returns the resolved Config. A missing file is not an
// error: Load returns the defaults.
func Load(configPath string) (*Config, error) {
	v = viper.New()
	setDefaults(v)
	v.SetEnvPrefix("S4")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
				}
			}
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_capacity", defaultLogCapacity)
	v.SetDefault("checkpoint_high_water", defaultCheckpointHighWater)
	v.SetDefault("sync_interval", defaultSyncInterval)
	v.SetDefault("b_indices", []string{})
	v.SetDefault("source_preference", []string{})
}

func fromViper(v *viper.Viper) *Config {
	if v == nil {
		return &Config{
			LogCapacity:         defaultLogCapacity,
			CheckpointHighWater: defaultCheckpointHighWater,
			SyncInterval:        defaultSyncInterval,
		}
	}
	return &Config{
		LogCapacity:         v.GetInt64("log_capacity"),
		CheckpointHighWater: v.GetInt64("checkpoint_high_water"),
		SyncInterval:        v.GetDuration("sync_interval"),
		BIndices:            v.GetStringSlice("b_indices"),
		SourcePreference:    v.GetStringSlice("source_preference"),
	}
}

// Watcher reloads Config from disk whenever configPath changes, the way
// the teacher's cmd/bd watches .beads for file-system events (debounced,
// stopped by Close) rather than polling.
type Watcher struct {
	path    string
	onLoad  func(*Config)
	watcher *fsnotify.Watcher
}

// WatchFile starts watching configPath's containing directory and calls
// onLoad with the freshly reloaded Config every time the file changes. The
// returned Watcher must be closed to stop the underlying fsnotify watcher.
func WatchFile(configPath string, onLoad func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	dir := filepath.Dir(configPath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watching %s: %w", dir, err)
	}

	w := &Watcher{path: configPath, onLoad: onLoad, watcher: fw}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(200 * time.Millisecond)
		case <-debounce.C:
			cfg, err := Load(w.path)
			if err == nil {
				w.onLoad(cfg)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher's goroutine.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
