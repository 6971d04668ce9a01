// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads vstack settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	vslog "github.com/tombee/vstack/internal/log"
	vserrors "github.com/tombee/vstack/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Trap kinds accepted by workers.trap.
const (
	TrapNone   = "none"
	TrapNative = "native"
	TrapEvents = "events"
)

// Config is the complete vstack configuration.
type Config struct {
	Log         LogConfig          `yaml:"log" json:"log"`
	Symbols     SymbolsConfig      `yaml:"symbols" json:"symbols"`
	Workers     WorkersConfig      `yaml:"workers" json:"workers"`
	Breakpoints []BreakpointConfig `yaml:"breakpoints" json:"breakpoints"`
	Metrics     MetricsConfig      `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig      `yaml:"tracing" json:"tracing"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Format is json or text.
	Format string `yaml:"format" json:"format"`

	// AddSource adds source file and line to log records.
	AddSource bool `yaml:"add_source" json:"add_source"`
}

// SymbolsConfig controls how source locations become debug symbols.
type SymbolsConfig struct {
	// MaxCoordinate is the largest line or column a symbol may carry.
	MaxCoordinate int `yaml:"max_coordinate" json:"max_coordinate"`

	// Checksum attaches a content hash of each document to its locations.
	Checksum bool `yaml:"checksum" json:"checksum"`

	// Include lists file globs to instrument. Empty means every file.
	Include []string `yaml:"include" json:"include"`
}

// WorkersConfig controls the worker behind each logical thread.
type WorkersConfig struct {
	// LockOSThread pins each worker goroutine to its own OS thread.
	LockOSThread bool `yaml:"lock_os_thread" json:"lock_os_thread"`

	// MaxThreads caps live logical threads. Zero means unlimited.
	MaxThreads int `yaml:"max_threads" json:"max_threads"`

	// Trap selects what a stop does: none, native or events.
	Trap string `yaml:"trap" json:"trap"`
}

// BreakpointConfig is one configured breakpoint.
type BreakpointConfig struct {
	State     string `yaml:"state,omitempty" json:"state,omitempty"`
	File      string `yaml:"file,omitempty" json:"file,omitempty"`
	Line      int    `yaml:"line,omitempty" json:"line,omitempty"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr" json:"addr"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Stdout prints finished spans to stderr.
	Stdout bool `yaml:"stdout" json:"stdout"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Symbols: SymbolsConfig{
			MaxCoordinate: 32767,
			Checksum:      true,
		},
		Workers: WorkersConfig{
			LockOSThread: true,
			MaxThreads:   1024,
			Trap:         TrapNone,
		},
	}
}

// Load loads configuration from configPath, or from the default location
// when configPath is empty and a file exists there. Environment variables
// override file values.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path := configPath
	if path == "" {
		if p, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &vserrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &vserrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values so minimal files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Symbols.MaxCoordinate == 0 {
		c.Symbols.MaxCoordinate = defaults.Symbols.MaxCoordinate
	}
	if c.Workers.Trap == "" {
		c.Workers.Trap = defaults.Workers.Trap
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("VSTACK_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("VSTACK_MAX_THREADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Workers.MaxThreads = n
		}
	}
	if val := os.Getenv("VSTACK_TRAP"); val != "" {
		c.Workers.Trap = strings.ToLower(val)
	}
	if val := os.Getenv("VSTACK_LOCK_OS_THREAD"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Workers.LockOSThread = b
		}
	}
	if val := os.Getenv("VSTACK_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Symbols.MaxCoordinate < 1 {
		errs = append(errs, fmt.Sprintf("symbols.max_coordinate must be positive, got %d", c.Symbols.MaxCoordinate))
	}
	for i, pattern := range c.Symbols.Include {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Sprintf("symbols.include[%d]: invalid glob %q", i, pattern))
		}
	}

	if c.Workers.MaxThreads < 0 {
		errs = append(errs, fmt.Sprintf("workers.max_threads must be non-negative, got %d", c.Workers.MaxThreads))
	}
	switch c.Workers.Trap {
	case TrapNone, TrapNative, TrapEvents:
	default:
		errs = append(errs, fmt.Sprintf("workers.trap must be one of [none, native, events], got %q", c.Workers.Trap))
	}

	for i, bp := range c.Breakpoints {
		if bp.State == "" && bp.File == "" {
			errs = append(errs, fmt.Sprintf("breakpoints[%d]: state or file is required", i))
		}
		if bp.Line < 0 {
			errs = append(errs, fmt.Sprintf("breakpoints[%d]: line must be positive, got %d", i, bp.Line))
		}
		if bp.Line > 0 && bp.File == "" {
			errs = append(errs, fmt.Sprintf("breakpoints[%d]: line requires file", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// LoggerConfig converts the log section for the log package.
func (c *Config) LoggerConfig() *vslog.Config {
	cfg := vslog.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = vslog.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	return cfg
}

// Instrumented reports whether file matches symbols.include.
func (c *Config) Instrumented(file string) bool {
	if len(c.Symbols.Include) == 0 {
		return true
	}
	file = filepath.ToSlash(file)
	for _, pattern := range c.Symbols.Include {
		if ok, err := doublestar.Match(pattern, file); err == nil && ok {
			return true
		}
	}
	return false
}
