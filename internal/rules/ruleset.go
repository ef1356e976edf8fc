// Package rules evaluates which actions a player may take in a match.
//
// A RuleSet is a named collection of predicates, one per domain.Permission.
// Rule sets are swappable at runtime through a Source; the state machine only
// ever sees the permissions a Source produces.
package rules

import (
	"errors"

	"github.com/fabianaguero/truco/internal/domain"
)

// ErrRulesetUnavailable is returned when no predicates are loaded.
var ErrRulesetUnavailable = errors.New("ruleset unavailable")

// Predicate decides one permission for a player. It must not mutate its arguments.
type Predicate func(p *domain.Player, m *domain.Match) bool

// RuleSet evaluates every permission it knows for a player.
type RuleSet interface {
	Name() string
	Evaluate(p *domain.Player, m *domain.Match) (domain.PermissionSet, error)
}

// PredicateSet is a RuleSet backed by Go functions.
type PredicateSet struct {
	name  string
	preds map[domain.Permission]Predicate
}

// NewPredicateSet returns a rule set built from the given predicates.
func NewPredicateSet(name string, preds map[domain.Permission]Predicate) *PredicateSet {
	cp := make(map[domain.Permission]Predicate, len(preds))
	for k, v := range preds {
		if v != nil {
			cp[k] = v
		}
	}
	return &PredicateSet{name: name, preds: cp}
}

func (s *PredicateSet) Name() string { return s.name }

// Evaluate runs every predicate. An empty set yields ErrRulesetUnavailable.
func (s *PredicateSet) Evaluate(p *domain.Player, m *domain.Match) (domain.PermissionSet, error) {
	ps := domain.NewPermissionSet()
	ps.EnvidoPoints = domain.EnvidoTotal(p.Hand)
	if len(s.preds) == 0 {
		return ps, ErrRulesetUnavailable
	}
	for perm, pred := range s.preds {
		ps.Set(perm, pred(p, m))
	}
	return ps, nil
}

// Empty is a rule set with no predicates.
func Empty() RuleSet {
	return NewPredicateSet("empty", nil)
}
