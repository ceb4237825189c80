// Package config holds the runtime configuration for the task runner:
// recovery ceilings, checkpoint storage, error routing patterns, and
// logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/phoenix/run"
)

// StoreConfig selects the checkpoint store backend.
type StoreConfig struct {
	// Type is one of "memory", "file", or "sqlite".
	Type string `yaml:"type" json:"type"`

	// Path is the store directory (file) or database file (sqlite).
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Config is the full runner configuration.
type Config struct {
	MaxRecursiveDepth   int                `yaml:"max_recursive_depth,omitempty" json:"max_recursive_depth,omitempty"`
	StepRetryLimit      int                `yaml:"step_retry_limit,omitempty" json:"step_retry_limit,omitempty"`
	HealRejectionLimit  int                `yaml:"heal_rejection_limit,omitempty" json:"heal_rejection_limit,omitempty"`
	DispatchTimeoutSecs int                `yaml:"dispatch_timeout_seconds,omitempty" json:"dispatch_timeout_seconds,omitempty"`
	RecursionBackoffMs  int                `yaml:"recursion_backoff_ms,omitempty" json:"recursion_backoff_ms,omitempty"`
	Store               StoreConfig        `yaml:"store,omitempty" json:"store,omitempty"`
	Patterns            run.RouterPatterns `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	LogLevel            string             `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MaxRecursiveDepth:   run.DefaultMaxDepth,
		StepRetryLimit:      run.DefaultStepRetryLimit,
		HealRejectionLimit:  run.DefaultRejectionLimit,
		DispatchTimeoutSecs: int(run.DefaultDispatchTimeout / time.Second),
		RecursionBackoffMs:  int(run.DefaultRecursionBackoffBase / time.Millisecond),
		Store:               StoreConfig{Type: "memory"},
		LogLevel:            "info",
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.MaxRecursiveDepth < 1 || c.MaxRecursiveDepth > 10 {
		return fmt.Errorf("max_recursive_depth must be between 1 and 10, got %d", c.MaxRecursiveDepth)
	}
	if c.StepRetryLimit < 1 {
		return fmt.Errorf("step_retry_limit must be at least 1, got %d", c.StepRetryLimit)
	}
	if c.HealRejectionLimit < 1 {
		return fmt.Errorf("heal_rejection_limit must be at least 1, got %d", c.HealRejectionLimit)
	}
	switch c.Store.Type {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store type %q requires a path", c.Store.Type)
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// DispatchTimeout returns the dispatch timeout as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSecs) * time.Second
}

// RecursionBackoffBase returns the recursion backoff base as a duration.
func (c *Config) RecursionBackoffBase() time.Duration {
	return time.Duration(c.RecursionBackoffMs) * time.Millisecond
}
