package app

import (
	"github.com/fabianaguero/truco/internal/domain"
)

// guard enforces the table mechanics the rule set does not express: turn
// ownership, one answer at a time, monotonic bid levels and a single
// envido or flor dispute per hand.
func guard(m *domain.Match, playerID string, perm domain.Permission) error {
	if m.Finished() {
		return illegal("match is finished")
	}
	if perm == domain.CanFold {
		if m.Phase == domain.PhaseHandResolved {
			return illegal("hand already resolved")
		}
		return nil
	}
	if m.Turn.Current() != playerID {
		return illegal("not %s's turn", playerID)
	}
	pending := m.PendingFamilies()

	switch perm {
	case domain.CanAccept, domain.CanReject:
		return nil
	case domain.CanPlayCard:
		if len(pending) > 0 {
			return illegal("a %s bid is awaiting an answer", pending[0])
		}
		return nil
	}

	call, ok := domain.CallFor(perm)
	if !ok {
		return illegal("unknown action %s", perm)
	}
	fam := call.Family()
	for _, f := range pending {
		if f != fam {
			return illegal("cannot call %s while %s is pending", call, f)
		}
	}
	bid := m.Bid(fam)
	if bid.Accepted && fam != domain.FamilyTruco {
		return illegal("%s was already settled this hand", fam)
	}
	if call.Level() <= bid.Level {
		return illegal("%s bid already at or above %s", fam, call)
	}
	return nil
}

// legalFor is the player's effective permission set: what the rule set grants,
// masked by guard.
func (mc *Machine) legalFor(m *domain.Match, p *domain.Player) domain.PermissionSet {
	ps := mc.rules.Evaluate(p, m)
	out := domain.NewPermissionSet()
	out.EnvidoPoints = ps.EnvidoPoints
	for _, perm := range domain.AllPermissions {
		out.Set(perm, ps.Has(perm) && guard(m, p.ID, perm) == nil)
	}
	return out
}

// LegalActions computes the effective permissions of every player.
func (mc *Machine) LegalActions(m *domain.Match) map[string]domain.PermissionSet {
	out := make(map[string]domain.PermissionSet, m.PlayerCount())
	for t := range m.Teams {
		for i := range m.Teams[t].Players {
			p := &m.Teams[t].Players[i]
			out[p.ID] = mc.legalFor(m, p)
		}
	}
	return out
}

// check validates one action for a player against guards then rules.
func (mc *Machine) check(m *domain.Match, playerID string, perm domain.Permission) (*domain.Player, error) {
	p, _, ok := m.Player(playerID)
	if !ok {
		return nil, errNotInMatch(m.ID, playerID)
	}
	if err := guard(m, playerID, perm); err != nil {
		return nil, err
	}
	if !mc.rules.Evaluate(p, m).Has(perm) {
		return nil, illegal("%s not permitted for %s", perm, playerID)
	}
	return p, nil
}
