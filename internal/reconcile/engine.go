package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"apkmerge/internal/logging"
	"apkmerge/internal/restable"
	"apkmerge/internal/rewrite"
	"apkmerge/internal/treemerge"
)

// Tree names a decompiled tree.
type Tree struct {
	Name string
	Root string
}

// Outcome summarizes an applied plan.
type Outcome struct {
	Splits       []SplitStats
	BaseRules    int
	BaseRewrite  rewrite.Stats
	TableWritten bool
}

// Engine plans and applies reconciliation.
type Engine struct {
	prefix   string
	rewriter *rewrite.Rewriter
	merger   *treemerge.Merger
	logger   *zap.Logger
}

// New creates an Engine. prefix identifies placeholder names.
func New(prefix string, rw *rewrite.Rewriter, mg *treemerge.Merger, logger *zap.Logger) *Engine {
	if prefix == "" {
		prefix = restable.DefaultPlaceholderPrefix
	}
	return &Engine{
		prefix:   prefix,
		rewriter: rw,
		merger:   mg,
		logger:   logging.For(logger, logging.CategoryReconcile),
	}
}

// Load reads the declaration tables of the base and every split. A base
// without a table yields a nil table; a split without one is treated as
// declaring nothing.
func (e *Engine) Load(base Tree, splits []Tree) (*restable.Table, []Split, error) {
	baseTable, err := restable.Load(base.Root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		e.logger.Info("base has no declaration table, skipping reconciliation", zap.String("base", base.Name))
		baseTable = nil
	case err != nil:
		return nil, nil, fmt.Errorf("base %s: %w", base.Name, err)
	}

	out := make([]Split, 0, len(splits))
	for _, s := range splits {
		t, err := restable.Load(s.Root)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			e.logger.Debug("split has no declaration table", zap.String("split", s.Name))
			t = nil
		case err != nil:
			return nil, nil, fmt.Errorf("split %s: %w", s.Name, err)
		}
		out = append(out, Split{Name: s.Name, Root: s.Root, Table: t})
	}
	return baseTable, out, nil
}

// Apply executes plan: each split tree is rewritten with its own rules and
// merged into the base, then the base tree is rewritten once and the merged
// table saved.
func (e *Engine) Apply(ctx context.Context, plan *Plan, baseRoot string) (*Outcome, error) {
	out := &Outcome{BaseRules: plan.BaseRules.Len()}

	for _, sp := range plan.Splits {
		stats := sp.Stats

		rw, err := e.rewriter.RewriteTree(ctx, sp.Root, sp.Rules)
		if err != nil {
			return out, fmt.Errorf("rewrite split %s: %w", sp.Name, err)
		}
		stats.Rewrite = rw

		mg, err := e.merger.Merge(ctx, sp.Root, baseRoot)
		if err != nil {
			return out, fmt.Errorf("merge split %s: %w", sp.Name, err)
		}
		stats.Merge = mg

		out.Splits = append(out.Splits, stats)
	}

	rw, err := e.rewriter.RewriteTree(ctx, baseRoot, plan.BaseRules)
	if err != nil {
		return out, fmt.Errorf("rewrite base: %w", err)
	}
	out.BaseRewrite = rw

	if plan.Merged != nil {
		wrote, err := plan.Merged.Save(baseRoot)
		if err != nil {
			return out, fmt.Errorf("save merged table: %w", err)
		}
		out.TableWritten = wrote
	}
	return out, nil
}

// Run loads, plans and applies. A planning error leaves every tree untouched.
func (e *Engine) Run(ctx context.Context, base Tree, splits []Tree) (*Outcome, error) {
	timer := logging.StartTimer(e.logger, "reconciliation")
	defer timer.StopWithInfo()

	baseTable, loaded, err := e.Load(base, splits)
	if err != nil {
		return nil, err
	}

	plan, err := e.Plan(baseTable, loaded)
	if err != nil {
		return nil, err
	}
	for _, sp := range plan.Splits {
		e.logger.Info("split classified",
			zap.String("split", sp.Name),
			zap.Int("new", sp.Stats.New),
			zap.Int("consistent", sp.Stats.Consistent),
			zap.Int("conflicts", sp.Stats.Conflicts),
			zap.Int("split_renames", sp.Stats.SplitRenames),
			zap.Int("base_renames", sp.Stats.BaseRenames))
		for _, r := range sp.Rules.Rules() {
			e.logger.Debug("split rename", zap.String("split", sp.Name), zap.Stringer("rule", r))
		}
	}
	for _, r := range plan.BaseRules.Rules() {
		e.logger.Debug("base rename", zap.Stringer("rule", r))
	}
	if plan.Merged != nil {
		e.warnDuplicateNames(plan.Merged)
	}

	return e.Apply(ctx, plan, base.Root)
}

// warnDuplicateNames reports (type, name) pairs bound to several identifiers;
// the compiler rejects those.
func (e *Engine) warnDuplicateNames(t *restable.Table) {
	type typeName struct{ typ, name string }
	seen := make(map[typeName]string)
	for _, d := range t.Declarations() {
		k := typeName{d.Type, d.Name}
		if id, dup := seen[k]; dup {
			e.logger.Warn("name bound to several identifiers",
				zap.String("type", d.Type), zap.String("name", d.Name),
				zap.String("id", d.ID), zap.String("other_id", id))
			continue
		}
		seen[k] = d.ID
	}
}
