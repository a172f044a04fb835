// Package config loads the node configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultWorkers is the default number of concurrent record workers.
const DefaultWorkers = 4

// Config is the node configuration.
type Config struct {
	// NodeGUID identifies this node in origin markers. Empty means the CLI
	// derives one.
	NodeGUID string `yaml:"node_guid"`

	// Database is the SQLite path.
	Database string `yaml:"database"`

	// Parent names the server this node reports to. Outcome reports from
	// the parent settle an outbound record; reports from any other server
	// are kept per server.
	Parent string `yaml:"parent"`

	// SchemaDir is a directory of CUE entity definitions. Empty means the
	// built-in clinical catalog.
	SchemaDir string `yaml:"schema_dir"`

	// AcceptTypes restricts the entity types this node ingests. Empty
	// accepts every catalog type.
	AcceptTypes []string `yaml:"accept_types"`

	// Workers bounds concurrent record processing during batch ingest.
	Workers int `yaml:"workers"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// MetricsFile, if set, receives Prometheus metrics in text format after
	// each ingest run.
	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database:    "medsync.db",
		Workers:     DefaultWorkers,
		LogLevel:    "info",
		AcceptTypes: []string{},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// Default().
//
// Returns an error if the file doesn't exist, is malformed, contains unknown
// keys, or holds invalid values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.AcceptTypes))
	for _, t := range c.AcceptTypes {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("accept_types: empty type name")
		}
		if seen[t] {
			return fmt.Errorf("accept_types: %q listed twice", t)
		}
		seen[t] = true
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level: unknown level %q", s)
	}
}
