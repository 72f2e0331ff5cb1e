package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"apkmerge/internal/logging"
)

// Host runs commands as child processes of apkmerge.
type Host struct {
	limits Limits
	logger *zap.Logger
}

// NewHost creates a Host. Zero fields of limits take DefaultLimits values.
func NewHost(limits Limits, logger *zap.Logger) *Host {
	def := DefaultLimits()
	if limits.Dir == "" {
		limits.Dir = def.Dir
	}
	if limits.Timeout <= 0 {
		limits.Timeout = def.Timeout
	}
	if limits.OutputLimit <= 0 {
		limits.OutputLimit = def.OutputLimit
	}
	return &Host{limits: limits, logger: logging.For(logger, logging.CategoryTactile)}
}

// Validate checks that the binary is named and the directory exists.
func (h *Host) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return errors.New("command has no binary")
	}
	if cmd.Dir == "" {
		return nil
	}
	info, err := os.Stat(cmd.Dir)
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %s is not a directory", cmd.Dir)
	}
	return nil
}

// Execute runs cmd and waits for it. A timeout or a canceled ctx kills the
// process and is reported through Result.Killed.
func (h *Host) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if err := h.Validate(cmd); err != nil {
		return nil, err
	}
	cmd = h.limits.fill(cmd)

	runCtx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	proc := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = cmd.Env
	}
	stdout := &capped{limit: cmd.OutputLimit}
	stderr := &capped{limit: cmd.OutputLimit}
	proc.Stdout = stdout
	proc.Stderr = stderr

	h.logger.Debug("starting process", zap.Stringer("cmd", cmd), zap.String("dir", cmd.Dir))

	res := &Result{ExitCode: -1, Started: time.Now()}
	err := proc.Run()
	res.Elapsed = time.Since(res.Started)
	res.Stdout = stdout.buf.String()
	res.Stderr = stderr.buf.String()
	res.Dropped = stdout.dropped + stderr.dropped

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case runCtx.Err() != nil:
		res.Killed = true
		if ctx.Err() != nil {
			res.KillReason = ctx.Err().Error()
		} else {
			res.KillReason = fmt.Sprintf("timeout after %s", cmd.Timeout)
		}
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.StartErr = err.Error()
	}

	if res.Dropped > 0 {
		h.logger.Warn("process output exceeded the capture limit",
			zap.String("binary", cmd.Binary), zap.Int64("dropped_bytes", res.Dropped))
	}
	if res.OK() {
		h.logger.Debug("process finished", zap.String("binary", cmd.Binary), zap.Duration("elapsed", res.Elapsed))
	} else {
		h.logger.Warn("process failed", zap.String("binary", cmd.Binary),
			zap.String("reason", res.Reason()), zap.Duration("elapsed", res.Elapsed))
	}
	return res, nil
}

// capped keeps the first limit bytes written to it and counts the rest.
type capped struct {
	buf     bytes.Buffer
	limit   int64
	dropped int64
}

func (c *capped) Write(p []byte) (int, error) {
	room := c.limit - int64(c.buf.Len())
	switch {
	case room <= 0:
		c.dropped += int64(len(p))
	case int64(len(p)) > room:
		c.buf.Write(p[:room])
		c.dropped += int64(len(p)) - room
	default:
		c.buf.Write(p)
	}
	// Report the full length so exec does not fail with a short write
	return len(p), nil
}
