package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
)

// RosterSpec describes who plays a new match. Either Teams lists both sides
// explicitly, or RandomTeams splits Players into two shuffled teams.
type RosterSpec struct {
	Teams       []TeamSpec   `json:"teams,omitempty"`
	RandomTeams bool         `json:"random_teams,omitempty"`
	Players     []PlayerSpec `json:"players,omitempty"`
	ScoreLimit  int          `json:"score_limit,omitempty"`
}

// TeamSpec names a team. With only ID set, name and members come from the roster store.
type TeamSpec struct {
	ID      string       `json:"id,omitempty"`
	Name    string       `json:"name,omitempty"`
	Players []PlayerSpec `json:"players,omitempty"`
}

// PlayerSpec is a player reference. With ID set the player is looked up in
// the roster store; otherwise a new guest player is created from Name.
type PlayerSpec struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// resolveRoster snapshots roster records into the two teams of a match.
func (s *Service) resolveRoster(ctx context.Context, spec RosterSpec) ([2]domain.Team, error) {
	var teams [2]domain.Team

	switch {
	case spec.RandomTeams:
		n := len(spec.Players)
		if n == 0 {
			return teams, invalid("roster is empty")
		}
		if n%2 != 0 {
			return teams, invalid("random teams need an even number of players, got %d", n)
		}
		if n > 2*MaxPlayersPerTeam {
			return teams, invalid("at most %d players, got %d", 2*MaxPlayersPerTeam, n)
		}
		players := make([]domain.Player, 0, n)
		for _, ps := range spec.Players {
			p, err := s.resolvePlayer(ctx, ps)
			if err != nil {
				return teams, err
			}
			players = append(players, p)
		}
		order := s.machine.rng.Perm(n)
		for i, idx := range order {
			t := i % 2
			teams[t].Players = append(teams[t].Players, players[idx])
		}

	case len(spec.Teams) != 2:
		return teams, invalid("a match needs exactly 2 teams, got %d", len(spec.Teams))

	default:
		for i, ts := range spec.Teams {
			t, err := s.resolveTeam(ctx, ts)
			if err != nil {
				return teams, err
			}
			if len(t.Players) == 0 {
				return teams, invalid("team %d has an empty roster", i+1)
			}
			teams[i] = t
		}
	}

	seen := map[string]bool{}
	for i := range teams {
		if teams[i].ID == "" {
			teams[i].ID = s.newID()
		}
		if strings.TrimSpace(teams[i].Name) == "" {
			teams[i].Name = fmt.Sprintf("Team %d", i+1)
		}
		for _, p := range teams[i].Players {
			if seen[p.ID] {
				return teams, invalid("player %s listed twice", p.ID)
			}
			seen[p.ID] = true
		}
	}
	return teams, nil
}

func (s *Service) resolveTeam(ctx context.Context, ts TeamSpec) (domain.Team, error) {
	t := domain.Team{ID: ts.ID, Name: ts.Name}
	specs := ts.Players
	if ts.ID != "" && len(specs) == 0 {
		rt, err := s.lookupTeam(ctx, ts.ID)
		if err != nil {
			return t, err
		}
		if t.Name == "" {
			t.Name = rt.Name
		}
		for _, id := range rt.PlayerIDs {
			specs = append(specs, PlayerSpec{ID: id})
		}
	}
	for _, ps := range specs {
		p, err := s.resolvePlayer(ctx, ps)
		if err != nil {
			return t, err
		}
		t.Players = append(t.Players, p)
	}
	return t, nil
}

func (s *Service) resolvePlayer(ctx context.Context, ps PlayerSpec) (domain.Player, error) {
	if ps.ID == "" {
		name := strings.TrimSpace(ps.Name)
		if name == "" {
			return domain.Player{}, invalid("player needs an id or a name")
		}
		return domain.Player{ID: s.newID(), Name: name}, nil
	}
	if s.rosters == nil {
		return domain.Player{}, fmt.Errorf("%w: player %s", ErrNotFound, ps.ID)
	}
	rp, err := s.rosters.GetPlayer(ctx, ps.ID)
	if err != nil {
		return domain.Player{}, rosterErr(err, "player", ps.ID)
	}
	name := rp.Name
	if ps.Name != "" {
		name = ps.Name
	}
	return domain.Player{ID: rp.ID, Name: name}, nil
}

func (s *Service) lookupTeam(ctx context.Context, id string) (*ports.RosterTeam, error) {
	if s.rosters == nil {
		return nil, fmt.Errorf("%w: team %s", ErrNotFound, id)
	}
	rt, err := s.rosters.GetTeam(ctx, id)
	if err != nil {
		return nil, rosterErr(err, "team", id)
	}
	return rt, nil
}

func rosterErr(err error, kind, id string) error {
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}
