package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// ParseFile loads a Config from a file, merging it over the defaults. The
// file extension is used to determine the format (JSON or YAML).
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(data)
	case ".yml", ".yaml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// ParseYAML parses a YAML configuration over the defaults. Unknown fields
// are an error.
func ParseYAML(data []byte) (*Config, error) {
	conf := Default()
	if err := yaml.UnmarshalWithOptions(data, conf, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ParseJSON parses a JSON configuration over the defaults.
func ParseJSON(data []byte) (*Config, error) {
	conf := Default()
	if err := json.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("invalid config json: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
