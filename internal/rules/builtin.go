package rules

import "github.com/fabianaguero/truco/internal/domain"

// BuiltinName names the compiled-in rule set.
const BuiltinName = "builtin"

// Builtin returns the standard Truco rules as Go predicates.
func Builtin() *PredicateSet {
	return NewPredicateSet(BuiltinName, map[domain.Permission]Predicate{
		domain.CanCallTruco:      levelIs(domain.FamilyTruco, 0),
		domain.CanCallRetruco:    levelIs(domain.FamilyTruco, 1),
		domain.CanCallValeCuatro: levelIs(domain.FamilyTruco, 2),

		domain.CanCallEnvido:      levelIs(domain.FamilyEnvido, 0),
		domain.CanCallRealEnvido:  levelIs(domain.FamilyEnvido, 1),
		domain.CanCallFaltaEnvido: levelIs(domain.FamilyEnvido, 2),

		domain.CanCallFlor: func(p *domain.Player, _ *domain.Match) bool {
			return domain.HasFlor(p.Hand)
		},
		// Contraflor only needs a flor on the table; the responder's own hand is not checked.
		domain.CanCallContraflor:        levelAtLeast(domain.FamilyFlor, 1),
		domain.CanCallContraflorAlResto: levelAtLeast(domain.FamilyFlor, 2),

		domain.CanAccept: canRespond,
		domain.CanReject: canRespond,
		domain.CanFold: func(_ *domain.Player, m *domain.Match) bool {
			return m.Phase != domain.PhaseHandResolved && m.Phase != domain.PhaseFinished
		},
		domain.CanPlayCard: func(p *domain.Player, _ *domain.Match) bool {
			return len(p.Hand) > 0
		},
	})
}

func levelIs(f domain.BidFamily, l domain.BidLevel) Predicate {
	return func(_ *domain.Player, m *domain.Match) bool {
		return m.Bid(f).Level == l
	}
}

func levelAtLeast(f domain.BidFamily, l domain.BidLevel) Predicate {
	return func(_ *domain.Player, m *domain.Match) bool {
		return m.Bid(f).Level >= l
	}
}

func canRespond(p *domain.Player, m *domain.Match) bool {
	pending := m.PendingFamilies()
	if len(pending) != 1 {
		return false
	}
	return m.Bid(pending[0]).CalledBy != p.ID
}
