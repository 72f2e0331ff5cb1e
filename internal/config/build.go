package config

// BuildConfig configures the environment handed to the decompiler and compiler.
type BuildConfig struct {
	// EnvVars are additional environment variables for tool runs.
	// Key examples: JAVA_HOME, JAVA_TOOL_OPTIONS
	EnvVars map[string]string `yaml:"env_vars" json:"env_vars,omitempty"`

	// JavaOptions are passed to the JVM before -jar.
	JavaOptions []string `yaml:"java_options" json:"java_options,omitempty"`
}

// DefaultBuildConfig returns sensible defaults.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		EnvVars:     make(map[string]string),
		JavaOptions: []string{},
	}
}
