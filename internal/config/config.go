package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all apkmerge configuration.
type Config struct {
	// Decompiler/compiler location
	Apktool ApktoolConfig `yaml:"apktool"`

	// Split merging behaviour
	Merge MergeConfig `yaml:"merge"`

	// External tool execution
	Execution ExecutionConfig `yaml:"execution"`

	// Tool environment
	Build BuildConfig `yaml:"build"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Apktool: ApktoolConfig{
			Java:       "java",
			Jar:        "apktool-cli-all.jar",
			Binary:     "apktool",
			Aapt2After: "2.4.2",
		},

		Merge: MergeConfig{
			PlaceholderPrefix: "APKTOOL_DUMMY_",
			ArchiveGlob:       "*.apk",
			TableFiles:        append([]string(nil), DefaultTableFiles...),
			StyleDedup:        true,
			Jobs:              1,
		},

		Execution: ExecutionConfig{
			Timeout:        "30m",
			AllowedEnvVars: []string{"PATH", "HOME", "JAVA_HOME", "JAVA_TOOL_OPTIONS", "_JAVA_OPTIONS", "TMPDIR", "USERPROFILE", "TEMP", "TMP"},
		},

		Build: DefaultBuildConfig(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Values from a .env file in the working directory and from the
// environment are applied on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Return defaults if config file doesn't exist
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs without overriding the real environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
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
	if jar := os.Getenv("APKMERGE_APKTOOL_JAR"); jar != "" {
		c.Apktool.Jar = jar
	}
	if bin := os.Getenv("APKMERGE_APKTOOL"); bin != "" {
		c.Apktool.Binary = bin
		// An explicit binary wins over the default jar unless a jar is also set
		if os.Getenv("APKMERGE_APKTOOL_JAR") == "" {
			c.Apktool.Jar = ""
		}
	}
	if java := os.Getenv("APKMERGE_JAVA"); java != "" {
		c.Apktool.Java = java
	}
	if prefix := os.Getenv("APKMERGE_PLACEHOLDER_PREFIX"); prefix != "" {
		c.Merge.PlaceholderPrefix = prefix
	}
	if jobs := os.Getenv("APKMERGE_JOBS"); jobs != "" {
		if n, err := strconv.Atoi(jobs); err == nil {
			c.Merge.Jobs = n
		}
	}
	if dir := os.Getenv("APKMERGE_WORK_DIR"); dir != "" {
		c.Execution.WorkDir = dir
	}
}

// ValidFormats lists the supported log formats.
var ValidFormats = []string{"text", "json"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Apktool.Jar == "" && c.Apktool.Binary == "" {
		return fmt.Errorf("apktool not configured (set apktool.jar, apktool.binary, APKMERGE_APKTOOL_JAR or APKMERGE_APKTOOL)")
	}
	if c.Apktool.UsesJar() && c.Apktool.Java == "" {
		return fmt.Errorf("apktool.java must be set when apktool.jar is used")
	}
	if c.Merge.PlaceholderPrefix == "" {
		return fmt.Errorf("merge.placeholder_prefix must not be empty")
	}
	if c.Merge.Jobs < 1 {
		return fmt.Errorf("merge.jobs must be >= 1, got %d", c.Merge.Jobs)
	}
	if !doublestar.ValidatePattern(c.Merge.ArchiveGlob) {
		return fmt.Errorf("invalid merge.archive_glob %q", c.Merge.ArchiveGlob)
	}
	for _, p := range c.Merge.TableFiles {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid merge.table_files pattern %q", p)
		}
	}

	validFormat := c.Logging.Format == ""
	for _, f := range ValidFormats {
		if c.Logging.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid logging format: %s (valid: %v)", c.Logging.Format, ValidFormats)
	}

	return nil
}
