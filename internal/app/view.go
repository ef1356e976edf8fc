package app

import "github.com/fabianaguero/truco/internal/domain"

// State is a match snapshot plus the effective legal actions of every player.
type State struct {
	Match *domain.Match                   `json:"match"`
	Legal map[string]domain.PermissionSet `json:"legal"`
}

// Public hides cards and envido totals so the state can be shown to observers.
func (s *State) Public() *State {
	out := &State{Match: s.Match.Redacted(), Legal: make(map[string]domain.PermissionSet, len(s.Legal))}
	for id, ps := range s.Legal {
		cp := ps.Clone()
		cp.EnvidoPoints = 0
		out.Legal[id] = cp
	}
	return out
}

// PlayerView is what a single player is allowed to see of a match.
type PlayerView struct {
	MatchID     string               `json:"match_id"`
	PlayerID    string               `json:"player_id"`
	Team        int                  `json:"team"`
	Hand        []domain.Card        `json:"hand"`
	Phase       domain.Phase         `json:"phase"`
	HandNumber  int                  `json:"hand_number"`
	TrickNumber int                  `json:"trick_number"`
	CurrentTurn string               `json:"current_turn"`
	IsTurn      bool                 `json:"is_turn"`
	Mano        string               `json:"mano"`
	HandValue   int                  `json:"hand_value"`
	Scores      [2]int               `json:"scores"`
	ScoreLimit  int                  `json:"score_limit"`
	Table       []domain.Play        `json:"table"`
	Legal       domain.PermissionSet `json:"legal"`
	Winner      *int                 `json:"winner"`
	Version     string               `json:"version"`
}

func newPlayerView(m *domain.Match, p *domain.Player, team int, legal domain.PermissionSet) *PlayerView {
	return &PlayerView{
		MatchID:     m.ID,
		PlayerID:    p.ID,
		Team:        team,
		Hand:        append([]domain.Card(nil), p.Hand...),
		Phase:       m.Phase,
		HandNumber:  m.HandNumber,
		TrickNumber: m.TrickNumber,
		CurrentTurn: m.Turn.Current(),
		IsTurn:      m.Turn.Current() == p.ID,
		Mano:        m.Mano,
		HandValue:   m.HandValue,
		Scores:      scores(m),
		ScoreLimit:  m.ScoreLimit,
		Table:       m.CurrentTrickPlays(),
		Legal:       legal,
		Winner:      m.Winner,
		Version:     m.Version,
	}
}
