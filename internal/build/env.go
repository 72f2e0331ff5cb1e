// Package build assembles the process environment for decompiler and
// compiler runs.
//
// Every tool invocation goes through ToolEnv so that the JVM sees the same
// filtered host environment plus the configured overrides, regardless of
// which stage launches it.
package build

import (
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"apkmerge/internal/config"
	"apkmerge/internal/logging"
)

// hostVars are copied from the host whenever they are set.
var hostVars = []string{"PATH", "HOME", "USERPROFILE", "TEMP", "TMP", "TMPDIR"}

// envSet keeps KEY=VALUE pairs in first-insertion order.
type envSet struct {
	keys []string
	vals map[string]string
}

func newEnvSet() *envSet {
	return &envSet{vals: make(map[string]string)}
}

func (s *envSet) set(key, val string) {
	if _, ok := s.vals[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.vals[key] = val
}

func (s *envSet) has(key string) bool {
	_, ok := s.vals[key]
	return ok
}

func (s *envSet) list() []string {
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k+"="+s.vals[k])
	}
	return out
}

// copyHost adds each named host variable that has a non-empty value.
func (s *envSet) copyHost(keys []string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			s.set(key, val)
		}
	}
}

// ToolEnv returns the environment for an external tool run: host
// essentials, then the allowed host variables, then the configured build
// variables, which win over both.
func ToolEnv(cfg *config.Config, logger *zap.Logger) []string {
	l := logging.For(logger, logging.CategoryBuild)

	env := newEnvSet()
	env.copyHost(hostVars)

	if cfg != nil {
		env.copyHost(cfg.Execution.AllowedEnvVars)

		// sorted so command logs are stable between runs
		keys := make([]string, 0, len(cfg.Build.EnvVars))
		for key := range cfg.Build.EnvVars {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			env.set(key, cfg.Build.EnvVars[key])
			l.Debug("added build env", zap.String("key", key))
		}
	}

	if !env.has("JAVA_HOME") {
		if home := deriveJavaHome(cfg); home != "" {
			env.set("JAVA_HOME", home)
			l.Debug("derived JAVA_HOME", zap.String("path", home))
		}
	}

	out := env.list()
	l.Debug("tool environment ready", zap.Int("vars", len(out)))
	return out
}

// deriveJavaHome guesses JAVA_HOME from an absolute java launcher path
// such as /usr/lib/jvm/17/bin/java.
func deriveJavaHome(cfg *config.Config) string {
	if cfg == nil || !cfg.Apktool.UsesJar() {
		return ""
	}
	java := cfg.Apktool.Java
	if !filepath.IsAbs(java) {
		return ""
	}
	bin := filepath.Dir(java)
	if filepath.Base(bin) != "bin" {
		return ""
	}
	return filepath.Dir(bin)
}
