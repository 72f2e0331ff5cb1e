package apktool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"apkmerge/internal/build"
	"apkmerge/internal/config"
	"apkmerge/internal/logging"
	"apkmerge/internal/tactile"
)

// outputTailLines bounds how much tool output is kept in a ToolError.
const outputTailLines = 20

// Runner runs apktool through a tactile.Executor.
type Runner struct {
	cfg     config.ApktoolConfig
	env     []string
	javaOpt []string
	timeout time.Duration
	exec    tactile.Executor
	logger  *zap.Logger
}

// NewRunner creates a Runner from configuration. A nil executor selects the
// host executor.
func NewRunner(cfg *config.Config, executor tactile.Executor, logger *zap.Logger) *Runner {
	if executor == nil {
		executor = tactile.NewHost(tactile.Limits{Timeout: cfg.Execution.GetTimeout()}, logger)
	}
	return &Runner{
		cfg:     cfg.Apktool,
		env:     build.ToolEnv(cfg, logger),
		javaOpt: cfg.Build.JavaOptions,
		timeout: cfg.Execution.GetTimeout(),
		exec:    executor,
		logger:  logging.For(logger, logging.CategoryDecompile),
	}
}

// command returns the launcher for the given apktool arguments.
func (r *Runner) command(args ...string) tactile.Command {
	cmd := tactile.Command{
		Env:     r.env,
		Timeout: r.timeout,
	}
	if r.cfg.UsesJar() {
		cmd.Binary = r.cfg.Java
		cmd.Args = append(cmd.Args, r.javaOpt...)
		cmd.Args = append(cmd.Args, "-jar", r.cfg.Jar)
	} else {
		cmd.Binary = r.cfg.Binary
	}
	cmd.Args = append(cmd.Args, args...)
	return cmd
}

// run executes cmd and converts failures into *ToolError.
func (r *Runner) run(ctx context.Context, op string, cmd tactile.Command) (*tactile.Result, error) {
	r.logger.Debug("running apktool", zap.String("op", op), zap.Stringer("cmd", cmd))

	result, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		return nil, &ToolError{Op: op, Command: cmd.String(), ExitCode: -1, Reason: err.Error()}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && result.Killed {
		return nil, fmt.Errorf("apktool %s: %w", op, ctxErr)
	}
	if !result.OK() {
		te := &ToolError{
			Op:       op,
			Command:  cmd.String(),
			ExitCode: result.ExitCode,
			Output:   tail(result.Combined(), outputTailLines),
		}
		if result.StartErr != "" || result.Killed {
			te.Reason = result.Reason()
		}
		return result, te
	}
	return result, nil
}

// Decode runs `apktool d -f -o <outDir> <archive>`.
func (r *Runner) Decode(ctx context.Context, archive, outDir string) error {
	timer := logging.StartTimer(r.logger, "decode "+filepath.Base(archive))
	defer timer.StopWithThreshold(r.timeout / 2)

	_, err := r.run(ctx, "decode", r.command("d", "-f", "-o", outDir, archive))
	return err
}

// Build runs `apktool b [--use-aapt2] -o <outArchive> <inDir>`.
func (r *Runner) Build(ctx context.Context, inDir, outArchive string, useAapt2 bool) error {
	timer := logging.StartTimer(r.logger, "build "+filepath.Base(outArchive))
	defer timer.StopWithThreshold(r.timeout / 2)

	args := []string{"b"}
	if useAapt2 {
		args = append(args, "--use-aapt2")
	}
	args = append(args, "-o", outArchive, inDir)

	_, err := r.run(ctx, "build", r.command(args...))
	return err
}

// Version runs `apktool -version` and parses the last non-empty line.
func (r *Runner) Version(ctx context.Context) (Version, error) {
	result, err := r.run(ctx, "version", r.command("-version"))
	if err != nil {
		return Version{}, err
	}

	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return ParseVersion(line)
		}
	}
	return Version{}, fmt.Errorf("apktool -version printed nothing: %w", ErrToolFailed)
}

// TreeVersion returns the version recorded in the tree's apktool.yml, falling
// back to asking the tool.
func TreeVersion(ctx context.Context, tool Tool, treeRoot string, logger *zap.Logger) (Version, error) {
	md, err := LoadMetadata(treeRoot)
	if err == nil {
		var v Version
		if v, err = md.ToolVersion(); err == nil {
			return v, nil
		}
	}
	if logger != nil {
		logger.Debug("tree metadata has no usable version, asking the tool", zap.Error(err))
	}
	return tool.Version(ctx)
}

// UseAapt2 decides the build backend: aapt2 when the tree has navigation
// resources or the tool is newer than after.
func UseAapt2(ctx context.Context, tool Tool, treeRoot string, after Version, logger *zap.Logger) (bool, error) {
	l := logging.For(logger, logging.CategoryBuild)

	info, err := os.Stat(filepath.Join(treeRoot, "res", "navigation"))
	if err == nil && info.IsDir() {
		l.Info("found res/navigation, rebuilding with aapt2")
		return true, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	v, err := TreeVersion(ctx, tool, treeRoot, l)
	if err != nil {
		return false, err
	}
	if v.GreaterThan(after) {
		l.Info("apktool newer than threshold, rebuilding with aapt2",
			zap.Stringer("version", v), zap.Stringer("threshold", after))
		return true, nil
	}
	l.Info("building with the default backend", zap.Stringer("version", v))
	return false, nil
}
