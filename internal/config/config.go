// Package config loads the DDA harness configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"ddaharness/internal/types"
	"ddaharness/internal/variants"
)

// Config holds all harness configuration.
type Config struct {
	// Binary locates the external DDA executable
	Binary BinaryConfig `yaml:"binary"`

	// Execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Analysis defaults applied to requests from the CLI
	Analysis AnalysisConfig `yaml:"analysis"`

	// Run history
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Binary: BinaryConfig{
			Path:  "bin/run_DDA_AsciiEdf",
			Shell: "sh",
		},

		Execution: ExecutionConfig{
			DefaultTimeout:  "10m",
			MaxTimeout:      "2h",
			WaitDelay:       "2s",
			MaxOutputBytes:  10 * 1024 * 1024,
			WorkDir:         filepath.Join(os.TempDir(), "dda-runs"),
			KeepOutputs:     false,
			AllowedEnvVars:  []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "SYSTEMROOT"},
			MaxParallelRuns: 2,
			WatchArtifacts:  true,
		},

		Analysis: AnalysisConfig{
			InputFormat:    string(types.FormatEDF),
			WindowLength:   125,
			WindowStep:     62,
			DelayMin:       7,
			DelayMax:       10,
			ModelTerms:     []int{1, 2, 10},
			Variants:       []string{variants.Default},
			CTWindowLength: 2,
			CTWindowStep:   2,
		},

		Store: StoreConfig{
			Enabled:       true,
			DatabasePath:  "data/dda_runs.db",
			StoreMatrices: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("DDA_BINARY_PATH"); path != "" {
		c.Binary.Path = path
	}
	if dir := os.Getenv("DDA_WORK_DIR"); dir != "" {
		c.Execution.WorkDir = dir
	}
	if timeout := os.Getenv("DDA_TIMEOUT"); timeout != "" {
		c.Execution.DefaultTimeout = timeout
	}
	if n := os.Getenv("DDA_MAX_PARALLEL"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Execution.MaxParallelRuns = v
		}
	}
	if path := os.Getenv("DDA_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if level := os.Getenv("DDA_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetDefaultTimeout returns the default run timeout as a duration.
func (c *Config) GetDefaultTimeout() time.Duration {
	return parseDuration(c.Execution.DefaultTimeout, 10*time.Minute)
}

// GetMaxTimeout returns the timeout cap as a duration.
func (c *Config) GetMaxTimeout() time.Duration {
	return parseDuration(c.Execution.MaxTimeout, 2*time.Hour)
}

// GetWaitDelay returns how long to wait on pipes after a kill.
func (c *Config) GetWaitDelay() time.Duration {
	return parseDuration(c.Execution.WaitDelay, 2*time.Second)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Binary.Path == "" {
		return fmt.Errorf("binary path not configured (set binary.path or DDA_BINARY_PATH)")
	}
	for name, value := range map[string]string{
		"execution.default_timeout": c.Execution.DefaultTimeout,
		"execution.max_timeout":     c.Execution.MaxTimeout,
		"execution.wait_delay":      c.Execution.WaitDelay,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if c.Execution.MaxParallelRuns < 1 {
		return fmt.Errorf("execution.max_parallel_runs must be at least 1, got %d", c.Execution.MaxParallelRuns)
	}
	if c.Execution.WorkDir == "" {
		return fmt.Errorf("execution.work_dir not configured")
	}
	if c.Store.Enabled && c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path not configured")
	}
	return c.Analysis.Validate()
}
