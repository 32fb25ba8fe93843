// Package config provides YAML configuration loading and validation for the
// gwatch CLI and collector.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for a gwatch trace run.
// All fields are optional: a zero Config produces a trace that writes only
// to stdout, with no history persistence and no remote collector.
type Config struct {
	// LogLevel sets the minimum severity for operational diagnostics:
	// "debug", "info", "warn", or "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// HistoryPath, when non-empty, is the path to a SQLite database that
	// persists every ChangeEvent of the trace for later replay.
	HistoryPath string `yaml:"history_path"`

	// JournalPath, when non-empty, is the path to a tamper-evident, hash-chained
	// log of resolution diagnostics and change events for this trace.
	JournalPath string `yaml:"journal_path"`

	// Collector holds the optional remote collector endpoint. When Addr is
	// empty, no events are streamed to a collector.
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig describes how to reach an optional gwatch-collector
// instance that ingests change events over HTTP.
type CollectorConfig struct {
	// Addr is the base URL of the collector's ingest endpoint (e.g.
	// "http://collector.internal:8090"). Required to enable remote
	// streaming.
	Addr string `yaml:"addr"`

	// Secret is the shared HS256 signing secret used to mint the bearer
	// token attached to every ingest request. Required when Addr is set.
	Secret string `yaml:"secret"`

	// HostLabel identifies this trace run to the collector (e.g. a hostname
	// or CI job id). Defaults to the local hostname when omitted.
	HostLabel string `yaml:"host_label"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all fields. A validation error joins every
// failure found (errors.Join), not only the first.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// Default returns a Config populated with defaults and no optional
// subsystems enabled, for use when no configuration file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Collector.Addr != "" && cfg.Collector.HostLabel == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Collector.HostLabel = h
		}
	}
}

// validate checks that all required fields are populated and that
// enumerated fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Collector.Addr != "" && cfg.Collector.Secret == "" {
		errs = append(errs, errors.New("collector.secret is required when collector.addr is set"))
	}

	return errors.Join(errs...)
}
