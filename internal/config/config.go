// Package config loads pool settings from YAML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"gopkg.in/yaml.v3"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileConfig is the on-disk layout of a configuration file.
type FileConfig struct {
	Pool    PoolConfig    `yaml:"pool" json:"pool"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Load    LoadConfig    `yaml:"load" json:"load"`
}

// PoolConfig sizes the pool.
type PoolConfig struct {
	Workers         int    `yaml:"workers" json:"workers"`
	Threshold       *int   `yaml:"threshold" json:"threshold"`
	PollTimeout     string `yaml:"poll_timeout" json:"poll_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls the observability server.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	Namespace      string `yaml:"namespace" json:"namespace"`
	Addr           string `yaml:"addr" json:"addr"`
	StreamInterval string `yaml:"stream_interval" json:"stream_interval"`
}

// LoadConfig describes the synthetic load run by the CLI.
type LoadConfig struct {
	Tasks int    `yaml:"tasks" json:"tasks"`
	Delay string `yaml:"delay" json:"delay"`
}

// Settings is the parsed, defaulted form of a FileConfig.
type Settings struct {
	Workers         int
	Threshold       int
	PollTimeout     time.Duration
	ShutdownTimeout time.Duration

	LogLevel  slog.Level
	LogFormat string

	MetricsEnabled bool
	Namespace      string
	Addr           string
	StreamInterval time.Duration

	Tasks int
	Delay time.Duration
}

// Defaults used when a field is left empty.
const (
	DefaultThreshold       = 1000
	DefaultPollTimeout     = time.Hour
	DefaultShutdownTimeout = 30 * time.Second
	DefaultNamespace       = "ezbalance"
	DefaultAddr            = ":9090"
	DefaultStreamInterval  = time.Second
	DefaultTasks           = 1000
)

// DefaultSettings returns the settings used when no file is given. Workers is
// 0, meaning one worker per CPU.
func DefaultSettings() Settings {
	return Settings{
		Threshold:       DefaultThreshold,
		PollTimeout:     DefaultPollTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        slog.LevelInfo,
		LogFormat:       "text",
		Namespace:       DefaultNamespace,
		Addr:            DefaultAddr,
		StreamInterval:  DefaultStreamInterval,
		Tasks:           DefaultTasks,
	}
}

// LoadFile reads a configuration file. The format is chosen by extension.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate checks value ranges that do not need parsing.
func (f *FileConfig) Validate() error {
	if f.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be non-negative")
	}

	if f.Pool.Threshold != nil && *f.Pool.Threshold < 0 {
		return fmt.Errorf("pool.threshold must be non-negative")
	}

	if f.Load.Tasks < 0 {
		return fmt.Errorf("load.tasks must be non-negative")
	}

	switch strings.ToLower(f.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// ToSettings validates f and converts it to Settings, filling defaults.
func (f *FileConfig) ToSettings() (Settings, error) {
	s := DefaultSettings()

	if err := f.Validate(); err != nil {
		return s, err
	}

	if f.Pool.Workers > 0 {
		s.Workers = f.Pool.Workers
	}
	if f.Pool.Threshold != nil {
		s.Threshold = *f.Pool.Threshold
	}

	var err error
	if s.PollTimeout, err = parseDuration("pool.poll_timeout", f.Pool.PollTimeout, s.PollTimeout); err != nil {
		return s, err
	}
	if s.ShutdownTimeout, err = parseDuration("pool.shutdown_timeout", f.Pool.ShutdownTimeout, s.ShutdownTimeout); err != nil {
		return s, err
	}

	if f.Log.Level != "" {
		if err := s.LogLevel.UnmarshalText([]byte(f.Log.Level)); err != nil {
			return s, fmt.Errorf("invalid log.level: %w", err)
		}
	}
	if f.Log.Format != "" {
		s.LogFormat = strings.ToLower(f.Log.Format)
	}

	s.MetricsEnabled = f.Metrics.Enabled
	if f.Metrics.Namespace != "" {
		s.Namespace = f.Metrics.Namespace
	}
	if f.Metrics.Addr != "" {
		s.Addr = f.Metrics.Addr
	}
	if s.StreamInterval, err = parseDuration("metrics.stream_interval", f.Metrics.StreamInterval, s.StreamInterval); err != nil {
		return s, err
	}

	if f.Load.Tasks > 0 {
		s.Tasks = f.Load.Tasks
	}
	if s.Delay, err = parseDuration("load.delay", f.Load.Delay, s.Delay); err != nil {
		return s, err
	}

	return s, nil
}

// parseDuration parses raw, returning def when raw is empty.
func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d < 0 {
		return def, fmt.Errorf("invalid %s: must be non-negative", field)
	}
	return d, nil
}
