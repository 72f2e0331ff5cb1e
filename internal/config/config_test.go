package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Merge.PlaceholderPrefix != "APKTOOL_DUMMY_" {
		t.Errorf("expected PlaceholderPrefix=APKTOOL_DUMMY_, got %s", cfg.Merge.PlaceholderPrefix)
	}
	if !cfg.Merge.StyleDedup {
		t.Error("expected style dedup enabled by default")
	}
	if cfg.Merge.Jobs != 1 {
		t.Errorf("expected Jobs=1, got %d", cfg.Merge.Jobs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "apkmerge.yaml")

	cfg := DefaultConfig()
	cfg.Apktool.Jar = "/opt/apktool_2.9.3.jar"
	cfg.Merge.Jobs = 4
	cfg.Merge.StyleDedup = false

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/apktool_2.9.3.jar", loaded.Apktool.Jar)
	assert.Equal(t, 4, loaded.Merge.Jobs)
	assert.False(t, loaded.Merge.StyleDedup)
	assert.Equal(t, DefaultTableFiles, loaded.Merge.TableFiles)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("merge: [unterminated"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("jar override", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APKMERGE_APKTOOL_JAR", "/tools/apktool.jar")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tools/apktool.jar", cfg.Apktool.Jar)
	})

	t.Run("binary alone clears default jar", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APKMERGE_APKTOOL", "/usr/local/bin/apktool")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/usr/local/bin/apktool", cfg.Apktool.Binary)
		assert.False(t, cfg.Apktool.UsesJar())
	})

	t.Run("jobs and prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APKMERGE_JOBS", "3")
		t.Setenv("APKMERGE_PLACEHOLDER_PREFIX", "DUMMY_")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 3, cfg.Merge.Jobs)
		assert.Equal(t, "DUMMY_", cfg.Merge.PlaceholderPrefix)
	})

	t.Run("non-numeric jobs ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APKMERGE_JOBS", "many")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 1, cfg.Merge.Jobs)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no tool", func(c *Config) { c.Apktool.Jar = ""; c.Apktool.Binary = "" }, "apktool not configured"},
		{"jar without java", func(c *Config) { c.Apktool.Java = "" }, "apktool.java"},
		{"empty prefix", func(c *Config) { c.Merge.PlaceholderPrefix = "" }, "placeholder_prefix"},
		{"zero jobs", func(c *Config) { c.Merge.Jobs = 0 }, "merge.jobs"},
		{"bad table pattern", func(c *Config) { c.Merge.TableFiles = []string{"res/[values"} }, "table_files"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestExecutionConfig_GetTimeout(t *testing.T) {
	assert.Equal(t, "5m0s", ExecutionConfig{Timeout: "5m"}.GetTimeout().String())
	assert.Equal(t, "30m0s", ExecutionConfig{Timeout: "soon"}.GetTimeout().String())
	assert.Equal(t, "30m0s", ExecutionConfig{}.GetTimeout().String())
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APKMERGE_APKTOOL_JAR", "APKMERGE_APKTOOL", "APKMERGE_JAVA",
		"APKMERGE_PLACEHOLDER_PREFIX", "APKMERGE_JOBS", "APKMERGE_WORK_DIR",
	} {
		t.Setenv(key, "")
	}
}
