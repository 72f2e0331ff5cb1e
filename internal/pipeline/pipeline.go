// Package pipeline sequences a merge run: select the base, decompile every
// archive, reconcile and merge the splits into the base, apply the
// structural hacks and rebuild.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"apkmerge/internal/apktool"
	"apkmerge/internal/archive"
	"apkmerge/internal/config"
	"apkmerge/internal/hacks"
	"apkmerge/internal/logging"
	"apkmerge/internal/reconcile"
	"apkmerge/internal/rewrite"
	"apkmerge/internal/treemerge"
)

// Options are the per-run inputs.
type Options struct {
	Package     string // package identifier used to pick the base archive
	InputDir    string
	Destination string

	StyleDedup bool
	DiffTrace  bool // log a diff of every rewritten document
}

// Report describes a finished (or failed) run.
type Report struct {
	RunID       string
	Base        archive.Archive
	Splits      []archive.Archive
	Manifests   map[string]*archive.Manifest // by archive name, when readable
	Passthrough bool                         // single archive copied verbatim

	Reconcile     *reconcile.Outcome
	StylesRemoved int
	Manifest      hacks.ManifestChanges
	UseAapt2      bool
	Destination   string

	Stages []StageRecord
}

// Pipeline runs merges. It holds no per-run state.
type Pipeline struct {
	cfg        *config.Config
	tool       apktool.Tool
	aapt2After apktool.Version
	merger     *treemerge.Merger
	hacks      *hacks.Hacks
	logger     *zap.Logger
	root       *zap.Logger
}

// New creates a Pipeline.
func New(cfg *config.Config, tool apktool.Tool, logger *zap.Logger) (*Pipeline, error) {
	if tool == nil {
		return nil, errors.New("pipeline: nil tool")
	}
	after, err := apktool.ParseVersion(cfg.Apktool.Aapt2After)
	if err != nil {
		return nil, fmt.Errorf("apktool.aapt2_after: %w", err)
	}
	mg, err := treemerge.New(cfg.Merge.TableFiles, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		tool:       tool,
		aapt2After: after,
		merger:     mg,
		hacks:      hacks.New(cfg.Merge.PlaceholderPrefix, logger),
		logger:     logging.For(logger, logging.CategoryPipeline),
		root:       logger,
	}, nil
}

// run is the state carried between stages.
type run struct {
	opts     Options
	report   *Report
	workDir  string
	baseRoot string
	trees    []reconcile.Tree // splits
}

// Run executes one merge. The returned report is non-nil even on failure
// and lists the stages that ran.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	r := &run{
		opts: opts,
		report: &Report{
			RunID:       uuid.NewString(),
			Manifests:   make(map[string]*archive.Manifest),
			Destination: opts.Destination,
		},
	}
	log := p.logger.With(zap.String("run", r.report.RunID[:8]))
	log.Info("merge started",
		zap.String("package", opts.Package),
		zap.String("input", opts.InputDir),
		zap.String("destination", opts.Destination))

	defer func() {
		if r.workDir == "" {
			return
		}
		if err := os.RemoveAll(r.workDir); err != nil {
			log.Warn("failed to remove working directory", zap.String("dir", r.workDir), zap.Error(err))
		}
	}()

	steps := []struct {
		stage Stage
		fn    func(context.Context, *run) (bool, error)
	}{
		{StageSelectBase, p.selectBase},
		{StageDecompileAll, p.decompileAll},
		{StageReconcileAndCopy, p.reconcileAndCopy},
		{StageStyleDedup, p.styleDedup},
		{StageManifestFix, p.manifestFix},
		{StageRebuild, p.rebuild},
	}

	for _, step := range steps {
		if r.report.Passthrough {
			break
		}
		if err := ctx.Err(); err != nil {
			r.record(step.stage, StatusFailed, 0, err)
			return r.report, err
		}

		log.Info("stage started", zap.String("stage", string(step.stage)))
		start := time.Now()
		ran, err := step.fn(ctx, r)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			r.record(step.stage, StatusFailed, elapsed, err)
			log.Error("stage failed", zap.String("stage", string(step.stage)), zap.Error(err))
			return r.report, fmt.Errorf("%s: %w", step.stage[1:], err)
		case !ran:
			r.record(step.stage, StatusSkipped, elapsed, nil)
			log.Info("stage skipped", zap.String("stage", string(step.stage)))
		default:
			r.record(step.stage, StatusCompleted, elapsed, nil)
			log.Info("stage completed", zap.String("stage", string(step.stage)), zap.Duration("elapsed", elapsed))
		}
	}

	r.record(StageDone, StatusCompleted, 0, nil)
	log.Info("merge finished", zap.String("output", opts.Destination))
	return r.report, nil
}

func (r *run) record(s Stage, status StageStatus, d time.Duration, err error) {
	r.report.Stages = append(r.report.Stages, StageRecord{Stage: s, Status: status, Duration: d, Err: err})
}

func (p *Pipeline) selectBase(_ context.Context, r *run) (bool, error) {
	archives, err := archive.Discover(r.opts.InputDir, p.cfg.Merge.ArchiveGlob)
	if err != nil {
		return false, err
	}
	base, splits, err := archive.SelectBase(archives, r.opts.Package)
	if err != nil {
		return false, err
	}
	r.report.Base = base
	r.report.Splits = splits

	for _, a := range archives {
		m, err := archive.Inspect(a.Path)
		if err != nil {
			p.logger.Warn("cannot read binary manifest", zap.String("archive", a.Name), zap.Error(err))
			continue
		}
		r.report.Manifests[a.Name] = m
		p.logger.Debug("archive manifest",
			zap.String("archive", a.Name),
			zap.String("package", m.Package),
			zap.String("split", m.Split))
		if a.Name == base.Name && m.IsSplit() {
			p.logger.Warn("selected base declares itself a split",
				zap.String("archive", a.Name), zap.String("split", m.Split))
		}
		if m.Package != "" && m.Package != r.opts.Package {
			p.logger.Warn("archive belongs to another package",
				zap.String("archive", a.Name), zap.String("package", m.Package))
		}
	}

	p.logger.Info("base selected", zap.String("base", base.Name), zap.Int("splits", len(splits)))

	if len(splits) == 0 {
		p.logger.Info("single archive, copying it unchanged")
		if err := archive.CopyFile(base.Path, r.opts.Destination); err != nil {
			return false, err
		}
		r.report.Passthrough = true
	}
	return true, nil
}

func (p *Pipeline) decompileAll(ctx context.Context, r *run) (bool, error) {
	dir, err := os.MkdirTemp(p.cfg.Execution.WorkDir, "apkmerge-"+r.report.RunID[:8]+"-*")
	if err != nil {
		return false, fmt.Errorf("create working directory: %w", err)
	}
	r.workDir = dir
	p.logger.Debug("working directory", zap.String("dir", dir))

	all := append([]archive.Archive{r.report.Base}, r.report.Splits...)
	roots := make([]string, len(all))
	for i, a := range all {
		roots[i] = filepath.Join(dir, a.Stem())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.Merge.Jobs))
	for i, a := range all {
		i, a := i, a
		g.Go(func() error {
			p.logger.Info("decompiling", zap.String("archive", a.Name))
			if err := p.tool.Decode(gctx, a.Path, roots[i]); err != nil {
				return fmt.Errorf("decompile %s: %w", a.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for i, a := range all {
		if evidence, ok := archive.DetectObfuscation(roots[i]); ok {
			p.logger.Warn("archive appears to be obfuscated, resource names may not survive",
				zap.String("archive", a.Name), zap.String("evidence", evidence))
		}
	}

	r.baseRoot = roots[0]
	for i, a := range r.report.Splits {
		r.trees = append(r.trees, reconcile.Tree{Name: a.Stem(), Root: roots[i+1]})
	}
	return true, nil
}

func (p *Pipeline) reconcileAndCopy(ctx context.Context, r *run) (bool, error) {
	rw := rewrite.New(p.root, rewrite.WithDiffTrace(r.opts.DiffTrace))
	engine := reconcile.New(p.cfg.Merge.PlaceholderPrefix, rw, p.merger, p.root)

	out, err := engine.Run(ctx, reconcile.Tree{Name: r.report.Base.Stem(), Root: r.baseRoot}, r.trees)
	if out != nil {
		r.report.Reconcile = out
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pipeline) styleDedup(_ context.Context, r *run) (bool, error) {
	if !r.opts.StyleDedup {
		return false, nil
	}
	n, err := p.hacks.DedupStyles(r.baseRoot)
	if err != nil {
		return false, err
	}
	r.report.StylesRemoved = n
	return true, nil
}

func (p *Pipeline) manifestFix(_ context.Context, r *run) (bool, error) {
	ch, err := p.hacks.SuppressSplits(r.baseRoot)
	if err != nil {
		return false, err
	}
	r.report.Manifest = ch
	return true, nil
}

func (p *Pipeline) rebuild(ctx context.Context, r *run) (bool, error) {
	aapt2, err := apktool.UseAapt2(ctx, p.tool, r.baseRoot, p.aapt2After, p.root)
	if err != nil {
		return false, err
	}
	r.report.UseAapt2 = aapt2

	if dir := filepath.Dir(r.opts.Destination); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	if err := p.tool.Build(ctx, r.baseRoot, r.opts.Destination, aapt2); err != nil {
		return false, fmt.Errorf("rebuild: %w", err)
	}
	return true, nil
}
