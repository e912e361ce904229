package config

import (
	"ddaharness/internal/tactile"
)

// BinaryConfig locates the DDA binary.
type BinaryConfig struct {
	// Path to the executable. Injected into the engine; never read from globals.
	Path string `yaml:"path" json:"path,omitempty"`

	// Shell used to launch bootstrap-shim binaries on Unix
	Shell string `yaml:"shell" json:"shell,omitempty"`
}

// ExecutionConfig configures the tactile engine.
type ExecutionConfig struct {
	// Default timeout for a run
	DefaultTimeout string `yaml:"default_timeout" json:"default_timeout,omitempty"`

	// Upper bound for any per-run timeout
	MaxTimeout string `yaml:"max_timeout" json:"max_timeout,omitempty"`

	// Grace period for inherited pipes after a kill
	WaitDelay string `yaml:"wait_delay" json:"wait_delay,omitempty"`

	// Captured stdout/stderr cap, per stream
	MaxOutputBytes int64 `yaml:"max_output_bytes" json:"max_output_bytes,omitempty"`

	// Directory for per-run output stems
	WorkDir string `yaml:"work_dir" json:"work_dir,omitempty"`

	// Keep variant output files after decoding
	KeepOutputs bool `yaml:"keep_outputs" json:"keep_outputs,omitempty"`

	// Environment variables to pass
	AllowedEnvVars []string `yaml:"allowed_env_vars" json:"allowed_env_vars,omitempty"`

	// Concurrency bound for batch analysis
	MaxParallelRuns int `yaml:"max_parallel_runs" json:"max_parallel_runs,omitempty"`

	// Record artifacts written during the run
	WatchArtifacts bool `yaml:"watch_artifacts" json:"watch_artifacts,omitempty"`
}

// ExecutorConfig converts the execution section into engine settings.
func (c *Config) ExecutorConfig() tactile.ExecutorConfig {
	cfg := tactile.DefaultExecutorConfig()
	cfg.DefaultTimeout = c.GetDefaultTimeout()
	cfg.MaxTimeout = c.GetMaxTimeout()
	cfg.WaitDelay = c.GetWaitDelay()
	if c.Execution.MaxOutputBytes > 0 {
		cfg.MaxOutputBytes = c.Execution.MaxOutputBytes
	}
	if c.Execution.AllowedEnvVars != nil {
		cfg.AllowedEnvironment = append([]string(nil), c.Execution.AllowedEnvVars...)
	}
	cfg.WatchArtifacts = c.Execution.WatchArtifacts
	return cfg
}
