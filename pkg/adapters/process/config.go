package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig describes a command allowed to perform effects of type Name.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile is the layout of a handlers file.
type ConfigFile struct {
	Handlers []ProcessConfig `yaml:"handlers" json:"handlers"`
}

// LoadHandlers reads a handlers file (YAML, or JSON by extension) keyed by
// effect type. A missing file yields no handlers.
func LoadHandlers(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read handlers config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out := make(map[string]ProcessConfig, len(cfg.Handlers))
	for i, h := range cfg.Handlers {
		if h.Name == "" || h.Command == "" {
			return nil, fmt.Errorf("%s: handlers[%d] needs a name and a command", path, i)
		}
		out[h.Name] = h
	}
	return out, nil
}
