package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// localDoc is the YAML-only subset of Config read directly from disk,
// bypassing viper — the same role the teacher's LocalConfig plays for
// config.yaml: reading a couple of fields before (or instead of) the full
// viper singleton is initialized, e.g. to learn which b-indices to declare
// before Open is even called.
type localDoc struct {
	BIndices []string `yaml:"b_indices"`
}

// LoadBIndices reads just the b_indices list from a YAML config file
// directly, returning nil (not an error) if the file is missing, not YAML,
// or doesn't set the key.
func LoadBIndices(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc localDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc.BIndices
}
