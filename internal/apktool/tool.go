// Package apktool wraps the external decompiler/compiler.
//
// The rest of apkmerge only sees the Tool interface; Runner is the real
// implementation and launches apktool through the tactile executor.
package apktool

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrToolFailed is returned when a decompile, build or version probe fails.
var ErrToolFailed = errors.New("external tool failed")

// Tool is the decompile/build contract.
type Tool interface {
	// Decode decompiles archive into outDir, replacing outDir if it exists.
	Decode(ctx context.Context, archive, outDir string) error

	// Build compiles inDir into outArchive.
	Build(ctx context.Context, inDir, outArchive string, useAapt2 bool) error

	// Version reports the tool version.
	Version(ctx context.Context) (Version, error)
}

// ToolError describes a failed tool invocation.
type ToolError struct {
	Op       string // decode, build, version
	Command  string
	ExitCode int
	Reason   string // kill reason or start failure
	Output   string // tail of the combined output
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "apktool %s failed", e.Op)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	} else {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Command != "" {
		fmt.Fprintf(&b, ": %s", e.Command)
	}
	if e.Output != "" {
		fmt.Fprintf(&b, "\n%s", e.Output)
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	return ErrToolFailed
}

// tail returns at most the last n lines of s.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
