package config

import "time"

// ExecutionConfig configures how external tools are run.
type ExecutionConfig struct {
	// Default timeout for a single decompile/build invocation
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`

	// Environment variables passed through from the host
	AllowedEnvVars []string `yaml:"allowed_env_vars" json:"allowed_env_vars,omitempty"`

	// Parent directory for the per-run working directory (empty = os.TempDir)
	WorkDir string `yaml:"work_dir" json:"work_dir,omitempty"`
}

// GetTimeout returns the tool timeout as a duration.
func (c ExecutionConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}
