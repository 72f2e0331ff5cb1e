package rewrite

import (
	"errors"
	"fmt"
)

// ErrRuleConflict is returned when two rules rename the same name in one
// scope to different targets.
var ErrRuleConflict = errors.New("conflicting rename rules")

// Rule renames references of Type from From to To.
type Rule struct {
	Type string
	From string
	To   string
}

func (r Rule) String() string {
	return fmt.Sprintf("%s: %s -> %s", r.Type, r.From, r.To)
}

type ruleKey struct {
	typ  string
	from string
}

// RuleSet holds the rules scoped to one tree.
type RuleSet struct {
	byKey map[ruleKey]string
	order []Rule
}

// NewRuleSet returns an empty rule set.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	s := &RuleSet{byKey: make(map[ruleKey]string)}
	for _, r := range rules {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add records r. Adding an identical rule again is a no-op.
func (s *RuleSet) Add(r Rule) error {
	if r.Type == "" || r.From == "" || r.To == "" {
		return fmt.Errorf("incomplete rename rule %q", r)
	}
	if r.From == r.To {
		return fmt.Errorf("rename rule %q does not rename", r)
	}
	k := ruleKey{r.Type, r.From}
	if to, ok := s.byKey[k]; ok {
		if to == r.To {
			return nil
		}
		return fmt.Errorf("%w: %s/%s -> %s and -> %s", ErrRuleConflict, r.Type, r.From, to, r.To)
	}
	s.byKey[k] = r.To
	s.order = append(s.order, r)
	return nil
}

// Lookup returns the new name for (typ, name).
func (s *RuleSet) Lookup(typ, name string) (string, bool) {
	if s == nil {
		return "", false
	}
	to, ok := s.byKey[ruleKey{typ, name}]
	return to, ok
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Rules returns the rules in insertion order.
func (s *RuleSet) Rules() []Rule {
	if s == nil {
		return nil
	}
	out := make([]Rule, len(s.order))
	copy(out, s.order)
	return out
}
