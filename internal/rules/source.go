package rules

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fabianaguero/truco/internal/domain"

	"go.uber.org/zap"
)

// Loader builds a fresh RuleSet, typically from files on disk.
type Loader func() (RuleSet, error)

type holder struct {
	rs RuleSet
}

// Source hands out the active RuleSet. The set can be swapped or reloaded while
// matches are being evaluated; each evaluation sees one consistent set.
type Source struct {
	current atomic.Pointer[holder]
	logger  *zap.Logger

	mu     sync.Mutex
	loader Loader
}

// NewSource returns a Source serving rs. A nil rs behaves as an unavailable rule set.
func NewSource(rs RuleSet, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{logger: logger}
	s.current.Store(&holder{rs: rs})
	return s
}

// Current returns the active rule set, possibly nil.
func (s *Source) Current() RuleSet {
	return s.current.Load().rs
}

// Swap installs rs and returns the previous set.
func (s *Source) Swap(rs RuleSet) RuleSet {
	prev := s.current.Swap(&holder{rs: rs})
	name := "<nil>"
	if rs != nil {
		name = rs.Name()
	}
	s.logger.Info("rule set swapped", zap.String("ruleset", name))
	return prev.rs
}

// SetLoader configures how Reload builds a new rule set.
func (s *Source) SetLoader(l Loader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loader = l
}

// Reload rebuilds the rule set with the configured loader. On failure the
// active set is kept.
func (s *Source) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loader == nil {
		return fmt.Errorf("%w: no loader configured", ErrRulesetUnavailable)
	}
	rs, err := s.loader()
	if err != nil {
		s.logger.Error("rule set reload failed", zap.Error(err))
		return err
	}
	prev := s.Swap(rs)
	if c, ok := prev.(interface{ Close() }); ok && prev != rs {
		c.Close()
	}
	return nil
}

// Evaluate returns the permissions the active rule set grants. It never fails:
// a missing or empty rule set denies everything and is logged as a
// configuration fault, and failing predicates count as denied.
func (s *Source) Evaluate(p *domain.Player, m *domain.Match) domain.PermissionSet {
	rs := s.Current()
	if rs == nil {
		s.logger.Error("configuration fault: no rule set loaded",
			zap.String("match_id", m.ID), zap.String("player_id", p.ID))
		ps := domain.NewPermissionSet()
		ps.EnvidoPoints = domain.EnvidoTotal(p.Hand)
		return ps
	}
	ps, err := rs.Evaluate(p, m)
	if ps.Allowed == nil {
		ps = domain.NewPermissionSet()
	}
	ps.EnvidoPoints = domain.EnvidoTotal(p.Hand)
	switch {
	case err == nil:
	case errors.Is(err, ErrRulesetUnavailable):
		s.logger.Error("configuration fault: rule set unavailable",
			zap.String("ruleset", rs.Name()), zap.String("match_id", m.ID), zap.Error(err))
		return domain.PermissionSet{Allowed: map[domain.Permission]bool{}, EnvidoPoints: ps.EnvidoPoints}
	default:
		s.logger.Warn("rule evaluation failed",
			zap.String("ruleset", rs.Name()), zap.String("match_id", m.ID),
			zap.String("player_id", p.ID), zap.Error(err))
	}
	return ps
}

// EngineLoader returns a Loader for a rules engine name: "builtin" or "lua".
// For "lua" a non-empty dir replaces the embedded scripts.
func EngineLoader(engine, dir string) Loader {
	return func() (RuleSet, error) {
		switch engine {
		case BuiltinName:
			return Builtin(), nil
		case "", "lua":
			var (
				rs  *LuaRuleSet
				err error
			)
			if dir != "" {
				rs, err = LoadLuaDir(dir)
			} else {
				rs, err = DefaultLua()
			}
			if err != nil {
				return nil, err
			}
			return rs, nil
		default:
			return nil, fmt.Errorf("%w: unknown rules engine %q", ErrRulesetUnavailable, engine)
		}
	}
}

// Open builds a Source from a rules engine and loads it once. A load failure
// still returns a usable Source that denies every action until a Reload succeeds.
func Open(engine, dir string, logger *zap.Logger) (*Source, error) {
	src := NewSource(nil, logger)
	src.SetLoader(EngineLoader(engine, dir))
	return src, src.Reload()
}
