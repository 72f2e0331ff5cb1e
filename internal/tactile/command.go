// Package tactile launches external processes for apkmerge. apktool is the
// only program it runs today; callers describe a launch as a Command and get
// a Result with the captured output back.
package tactile

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Command is one process launch.
type Command struct {
	Binary string
	Args   []string
	Dir    string   // defaults to Limits.Dir
	Env    []string // KEY=VALUE; when non-empty it is the whole child environment

	Timeout     time.Duration // defaults to Limits.Timeout
	OutputLimit int64         // bytes kept per stream, defaults to Limits.OutputLimit
}

// String renders the command line, quoting arguments that need it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Binary)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result is what a launch produced.
type Result struct {
	ExitCode int // -1 when the process did not exit on its own
	Stdout   string
	Stderr   string

	Started time.Time
	Elapsed time.Duration

	Killed     bool
	KillReason string
	Dropped    int64 // output bytes beyond OutputLimit

	// StartErr is set when the process could not be started at all.
	StartErr string
}

// OK reports a clean zero exit.
func (r *Result) OK() bool {
	return r.StartErr == "" && !r.Killed && r.ExitCode == 0
}

// Reason describes why a launch was not OK, or "" when it was.
func (r *Result) Reason() string {
	switch {
	case r.StartErr != "":
		return r.StartErr
	case r.Killed:
		return r.KillReason
	case r.ExitCode != 0:
		return "exit " + strconv.Itoa(r.ExitCode)
	}
	return ""
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs commands.
type Executor interface {
	// Execute runs cmd to completion. Failures of the process itself are
	// reported in the Result; the error is for commands that fail Validate.
	Execute(ctx context.Context, cmd Command) (*Result, error)

	// Validate checks cmd without running it.
	Validate(cmd Command) error
}

// Limits are the defaults applied to commands that leave a field unset.
type Limits struct {
	Dir         string
	Timeout     time.Duration
	OutputLimit int64
}

// DefaultLimits suit apktool runs on large archives.
func DefaultLimits() Limits {
	return Limits{
		Dir:         ".",
		Timeout:     30 * time.Minute,
		OutputLimit: 4 << 20,
	}
}

func (l Limits) fill(cmd Command) Command {
	if cmd.Dir == "" {
		cmd.Dir = l.Dir
	}
	if cmd.Timeout <= 0 {
		cmd.Timeout = l.Timeout
	}
	if cmd.OutputLimit <= 0 {
		cmd.OutputLimit = l.OutputLimit
	}
	return cmd
}
