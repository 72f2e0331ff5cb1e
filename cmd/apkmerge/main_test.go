package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"apkmerge/internal/apktool"
	"apkmerge/internal/config"
)

// failingTool fails every decode.
type failingTool struct{ decodes int }

func (f *failingTool) Decode(context.Context, string, string) error {
	f.decodes++
	return &apktool.ToolError{Op: "decode", ExitCode: 1}
}
func (f *failingTool) Build(context.Context, string, string, bool) error { return nil }
func (f *failingTool) Version(context.Context) (apktool.Version, error) {
	return apktool.MustParseVersion("2.9.3"), nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"APKMERGE_APKTOOL_JAR", "APKMERGE_APKTOOL", "APKMERGE_JAVA", "APKMERGE_JOBS", "APKMERGE_PLACEHOLDER_PREFIX", "APKMERGE_WORK_DIR"} {
		t.Setenv(k, "")
	}
}

func execute(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	cmd := c.command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommand_RequiresThreeArgs(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, newCLI(), "com.example", "./in")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 3 arg(s)")
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *config.Config)
	}{
		{"defaults untouched", nil, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, config.DefaultConfig(), cfg)
		}},
		{"binary replaces default jar", []string{"--apktool", "/usr/bin/apktool"}, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, "/usr/bin/apktool", cfg.Apktool.Binary)
			assert.Empty(t, cfg.Apktool.Jar)
		}},
		{"jar wins with both", []string{"--apktool", "apktool", "--apktool-jar", "/opt/a.jar", "--java", "/jdk/bin/java"}, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, "/opt/a.jar", cfg.Apktool.Jar)
			assert.Equal(t, "/jdk/bin/java", cfg.Apktool.Java)
		}},
		{"merge knobs", []string{"--jobs", "4", "--timeout", "90s", "--placeholder-prefix", "DUMMY_", "--disable-style-dedup-hack"}, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, 4, cfg.Merge.Jobs)
			assert.Equal(t, "1m30s", cfg.Execution.Timeout)
			assert.Equal(t, "DUMMY_", cfg.Merge.PlaceholderPrefix)
			assert.False(t, cfg.Merge.StyleDedup)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI()
			cmd := c.command()
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg := config.DefaultConfig()
			c.applyFlags(cmd, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestRun_SingleArchiveWithSummary(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(in, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "com.example.apk"), []byte("zip"), 0644))
	dest := filepath.Join(dir, "merged.apk")

	out, err := execute(t, newCLI(), "--config", filepath.Join(dir, "none.yaml"), "--summary",
		"com.example", in, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))
	assert.Contains(t, out, "single archive com.example.apk copied")
	assert.Contains(t, out, "/select_base")
}

func TestRun_ToolFailureIsReturned(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(in, 0755))
	for _, n := range []string{"com.example.apk", "split_config.en.apk"} {
		require.NoError(t, os.WriteFile(filepath.Join(in, n), []byte("zip"), 0644))
	}

	tool := &failingTool{}
	c := newCLI()
	c.newTool = func(*config.Config, *zap.Logger) apktool.Tool { return tool }

	_, err := execute(t, c, "--config", filepath.Join(dir, "none.yaml"), "com.example", in, filepath.Join(dir, "out.apk"))
	require.ErrorIs(t, err, apktool.ErrToolFailed)
	assert.Equal(t, 2, tool.decodes)
	assert.NoFileExists(t, filepath.Join(dir, "out.apk"))
}

func TestRun_InvalidConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "apkmerge.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("merge:\n  jobs: 0\n"), 0644))

	_, err := execute(t, newCLI(), "--config", cfgPath, "com.example", dir, filepath.Join(dir, "out.apk"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge.jobs")
}
