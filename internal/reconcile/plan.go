// Package reconcile merges the resource declaration tables of split trees
// into the base table and derives the rename rules that make every
// reference agree with the merged table.
package reconcile

import (
	"fmt"
	"sort"

	"apkmerge/internal/restable"
	"apkmerge/internal/rewrite"
	"apkmerge/internal/treemerge"
)

// Split is one decompiled split and its declaration table.
type Split struct {
	Name  string
	Root  string
	Table *restable.Table // nil when the split has no table
}

// SplitStats counts one split's classification and, after Apply, what
// happened to its files.
type SplitStats struct {
	Name         string
	New          int
	Consistent   int
	Conflicts    int
	SplitRenames int
	BaseRenames  int

	Rewrite rewrite.Stats
	Merge   treemerge.Stats
}

// SplitPlan is the work planned for one split.
type SplitPlan struct {
	Name  string
	Root  string
	New   []restable.Declaration
	Rules *rewrite.RuleSet // scoped to the split's tree
	Stats SplitStats
}

// Plan is the full reconciliation result. Nothing has touched disk yet.
type Plan struct {
	Splits    []SplitPlan
	BaseRules *rewrite.RuleSet // scoped to the base tree

	// Merged is the base table after reconciliation, nil when the base has
	// no declaration table.
	Merged *restable.Table
}

// NewDeclarations returns every declaration contributed by splits, in
// processing order.
func (p *Plan) NewDeclarations() []restable.Declaration {
	var out []restable.Declaration
	for _, sp := range p.Splits {
		out = append(out, sp.New...)
	}
	return out
}

// Plan classifies every split declaration against the evolving base table.
// Splits are processed in lexicographic name order. base may be nil, in
// which case only empty split plans are returned.
func (e *Engine) Plan(base *restable.Table, splits []Split) (*Plan, error) {
	ordered := make([]Split, len(splits))
	copy(ordered, splits)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	plan := &Plan{BaseRules: mustRuleSet()}

	if base == nil {
		for _, s := range ordered {
			plan.Splits = append(plan.Splits, SplitPlan{
				Name:  s.Name,
				Root:  s.Root,
				Rules: mustRuleSet(),
				Stats: SplitStats{Name: s.Name},
			})
		}
		return plan, nil
	}

	st := newState(base)
	for i, s := range ordered {
		sp, err := e.planSplit(st, plan.BaseRules, i, s)
		if err != nil {
			return nil, err
		}
		plan.Splits = append(plan.Splits, sp)
	}
	if err := resolveDeferred(plan, st.deferred); err != nil {
		return nil, err
	}

	merged, err := restable.New(base.Declarations()...)
	if err != nil {
		return nil, err
	}
	if err := merged.Append(plan.NewDeclarations()...); err != nil {
		return nil, err
	}
	for _, r := range plan.BaseRules.Rules() {
		merged.Rename(r.Type, r.From, r.To)
	}
	plan.Merged = merged
	return plan, nil
}

// state is the base table as seen by the split being classified: the
// original declarations plus everything queued by earlier splits.
type state struct {
	byKey   map[restable.Key]restable.Declaration
	idTypes map[string][]string
	// deferred holds keys where split and base both carry placeholders.
	deferred []deferredConflict
}

// deferredConflict waits until every split has been classified, so that a
// real name for the base placeholder may come from any split.
type deferredConflict struct {
	split    int
	decl     restable.Declaration
	baseName string
}

func newState(base *restable.Table) *state {
	return &state{
		byKey:   base.IndexByID(),
		idTypes: base.TypesByID(),
	}
}

func (st *state) add(d restable.Declaration) {
	st.byKey[d.Key()] = d
	st.idTypes[d.ID] = append(st.idTypes[d.ID], d.Type)
}

func (e *Engine) planSplit(st *state, baseRules *rewrite.RuleSet, idx int, s Split) (SplitPlan, error) {
	sp := SplitPlan{
		Name:  s.Name,
		Root:  s.Root,
		Rules: mustRuleSet(),
		Stats: SplitStats{Name: s.Name},
	}
	if s.Table == nil {
		return sp, nil
	}

	for _, d := range s.Table.Declarations() {
		b, ok := st.byKey[d.Key()]
		if !ok {
			for _, typ := range st.idTypes[d.ID] {
				if typ != d.Type {
					return sp, &TypeMismatchError{
						Split:     s.Name,
						ID:        d.ID,
						SplitType: d.Type,
						BaseType:  typ,
						Name:      d.Name,
					}
				}
			}
			d.Provenance = s.Name
			sp.New = append(sp.New, d)
			st.add(d)
			sp.Stats.New++
			continue
		}

		if d.Name == b.Name {
			sp.Stats.Consistent++
			continue
		}

		sp.Stats.Conflicts++
		splitPh := restable.IsPlaceholder(d.Name, e.prefix)
		basePh := restable.IsPlaceholder(b.Name, e.prefix)

		switch {
		case splitPh && !basePh:
			if err := sp.Rules.Add(rewrite.Rule{Type: d.Type, From: d.Name, To: b.Name}); err != nil {
				return sp, fmt.Errorf("split %s: %w", s.Name, err)
			}
			sp.Stats.SplitRenames++

		case basePh && !splitPh:
			if err := baseRules.Add(rewrite.Rule{Type: d.Type, From: b.Name, To: d.Name}); err != nil {
				return sp, fmt.Errorf("split %s: %w", s.Name, err)
			}
			sp.Stats.BaseRenames++

		case splitPh && basePh:
			st.deferred = append(st.deferred, deferredConflict{split: idx, decl: d, baseName: b.Name})

		default:
			return sp, &ConflictError{Split: s.Name, Key: d.Key(), SplitName: d.Name, BaseName: b.Name, Reason: "neither name is a placeholder"}
		}
	}
	return sp, nil
}

// resolveDeferred settles placeholder-versus-placeholder conflicts against
// the final base rules. Without a real name for the base placeholder the
// conflict is unresolvable.
func resolveDeferred(plan *Plan, deferred []deferredConflict) error {
	for _, c := range deferred {
		sp := &plan.Splits[c.split]
		d := c.decl
		to, ok := plan.BaseRules.Lookup(d.Type, c.baseName)
		if !ok {
			return &ConflictError{Split: sp.Name, Key: d.Key(), SplitName: d.Name, BaseName: c.baseName, Reason: "both names are placeholders"}
		}
		if d.Name == to {
			continue
		}
		if err := sp.Rules.Add(rewrite.Rule{Type: d.Type, From: d.Name, To: to}); err != nil {
			return fmt.Errorf("split %s: %w", sp.Name, err)
		}
		sp.Stats.SplitRenames++
	}
	return nil
}

func mustRuleSet() *rewrite.RuleSet {
	rs, _ := rewrite.NewRuleSet()
	return rs
}
