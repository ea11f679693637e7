package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// starterDoc mirrors Config's fields for TOML encoding, the way
// internal/recipes' user-recipe struct is encoded with toml.NewEncoder.
type starterDoc struct {
	LogCapacity         int64    `toml:"log_capacity"`
	CheckpointHighWater int64    `toml:"checkpoint_high_water"`
	SyncInterval        string   `toml:"sync_interval"`
	BIndices            []string `toml:"b_indices"`
	SourcePreference    []string `toml:"source_preference"`
}

// WriteStarter writes a starter TOML config file at path with the engine's
// built-in defaults, failing if path already exists so it never clobbers an
// edited config.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	defer f.Close()

	doc := starterDoc{
		LogCapacity:         defaultLogCapacity,
		CheckpointHighWater: defaultCheckpointHighWater,
		SyncInterval:        defaultSyncInterval.String(),
		BIndices:            []string{},
		SourcePreference:    []string{},
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("config: encoding starter file: %w", err)
	}
	return nil
}
