package domain

import "time"

// Phase represents where a match is within the current hand.
type Phase string

const (
	// PhaseDealt is the state right after dealing, before any card is played.
	PhaseDealt Phase = "dealt"
	// PhaseTrickInProgress is active trick play.
	PhaseTrickInProgress Phase = "trick_in_progress"
	// PhaseHandResolved is the moment a hand has been scored.
	PhaseHandResolved Phase = "hand_resolved"
	// PhaseFinished is terminal: a team reached the score limit.
	PhaseFinished Phase = "finished"
)

// DefaultScoreLimit is the score that wins a match unless configured otherwise.
const DefaultScoreLimit = 30

// NoTeam marks an unset team index.
const NoTeam = -1

// Player is a participant snapshot taken from the roster at match creation.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Hand holds the cards still to be played, in dealt order.
	Hand []Card `json:"hand"`
	// Dealt is the full hand dealt this hand, kept for envido and flor disputes.
	Dealt []Card `json:"dealt"`
}

// Team is one side of the match.
type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Players []Player `json:"players"`
	Score   int      `json:"score"`
}

// Play is one card laid on the table.
type Play struct {
	Hand     int    `json:"hand"`
	Trick    int    `json:"trick"`
	PlayerID string `json:"player_id"`
	Card     Card   `json:"card"`
}

// TrickResult records who took a trick.
type TrickResult struct {
	Hand       int    `json:"hand"`
	Trick      int    `json:"trick"`
	WinnerID   string `json:"winner_id"`
	WinnerTeam int    `json:"winner_team"`
}

// HandOutcome explains how a hand ended.
type HandOutcome string

const (
	OutcomeTricks   HandOutcome = "tricks"
	OutcomeRejected HandOutcome = "rejected"
	OutcomeFolded   HandOutcome = "folded"
	OutcomeLimit    HandOutcome = "limit_reached"
)

// HandResult summarizes the last scored hand.
type HandResult struct {
	Hand       int         `json:"hand"`
	WinnerTeam int         `json:"winner_team"`
	Points     int         `json:"points"`
	Outcome    HandOutcome `json:"outcome"`
}

// Match is the authoritative state of one Truco match.
type Match struct {
	ID          string    `json:"id"`
	Teams       [2]Team   `json:"teams"`
	Turn        TurnOrder `json:"turn"`
	Mano        string    `json:"mano"`
	HandNumber  int       `json:"hand_number"`
	TrickNumber int       `json:"trick_number"`
	ScoreLimit  int       `json:"score_limit"`
	Phase       Phase     `json:"phase"`

	// HandValue is what the current hand is worth to the team that wins it.
	HandValue int `json:"hand_value"`
	Truco     Bid `json:"truco"`
	Envido    Bid `json:"envido"`
	Flor      Bid `json:"flor"`

	Plays  []Play        `json:"plays"`
	Tricks []TrickResult `json:"tricks"`

	HandWinner *int        `json:"hand_winner"`
	LastHand   *HandResult `json:"last_hand,omitempty"`
	Winner     *int        `json:"winner"`

	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bid returns a pointer to the family's bid state.
func (m *Match) Bid(f BidFamily) *Bid {
	switch f {
	case FamilyTruco:
		return &m.Truco
	case FamilyEnvido:
		return &m.Envido
	case FamilyFlor:
		return &m.Flor
	}
	return nil
}

// PendingFamilies lists families with a called but unanswered bid.
func (m *Match) PendingFamilies() []BidFamily {
	var out []BidFamily
	for _, f := range Families {
		if m.Bid(f).Pending {
			out = append(out, f)
		}
	}
	return out
}

// Finished reports whether the match reached its terminal state.
func (m *Match) Finished() bool {
	return m.Phase == PhaseFinished
}

// Player finds a player and the index of their team.
func (m *Match) Player(id string) (*Player, int, bool) {
	for t := range m.Teams {
		for i := range m.Teams[t].Players {
			if m.Teams[t].Players[i].ID == id {
				return &m.Teams[t].Players[i], t, true
			}
		}
	}
	return nil, NoTeam, false
}

// TeamOf returns the team index of a player or NoTeam.
func (m *Match) TeamOf(id string) int {
	_, team, _ := m.Player(id)
	return team
}

// PlayerCount returns the number of seated players.
func (m *Match) PlayerCount() int {
	return len(m.Teams[0].Players) + len(m.Teams[1].Players)
}

// PlayerIDs returns every player id, team A first.
func (m *Match) PlayerIDs() []string {
	ids := make([]string, 0, m.PlayerCount())
	for _, t := range m.Teams {
		for _, p := range t.Players {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// CurrentTrickPlays returns the plays made in the trick being contested.
func (m *Match) CurrentTrickPlays() []Play {
	var out []Play
	for _, p := range m.Plays {
		if p.Hand == m.HandNumber && p.Trick == m.TrickNumber {
			out = append(out, p)
		}
	}
	return out
}

// TrickWins counts tricks taken by each team in the current hand.
func (m *Match) TrickWins() [2]int {
	var wins [2]int
	for _, t := range m.Tricks {
		if t.Hand == m.HandNumber && t.WinnerTeam >= 0 && t.WinnerTeam < 2 {
			wins[t.WinnerTeam]++
		}
	}
	return wins
}

// PointsToLimit is how many points the leading team lacks to reach the limit, at least one.
func (m *Match) PointsToLimit() int {
	lead := m.Teams[0].Score
	if m.Teams[1].Score > lead {
		lead = m.Teams[1].Score
	}
	if n := m.ScoreLimit - lead; n > 0 {
		return n
	}
	return 1
}

// Clone returns a deep copy so a mutation can be computed off the stored value.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	for t := range m.Teams {
		out.Teams[t].Players = make([]Player, len(m.Teams[t].Players))
		for i, p := range m.Teams[t].Players {
			p.Hand = append([]Card(nil), p.Hand...)
			p.Dealt = append([]Card(nil), p.Dealt...)
			out.Teams[t].Players[i] = p
		}
	}
	out.Turn.Seats = append([]string(nil), m.Turn.Seats...)
	out.Plays = append([]Play(nil), m.Plays...)
	out.Tricks = append([]TrickResult(nil), m.Tricks...)
	out.HandWinner = cloneInt(m.HandWinner)
	out.Winner = cloneInt(m.Winner)
	if m.LastHand != nil {
		lh := *m.LastHand
		out.LastHand = &lh
	}
	return &out
}

// Redacted returns a copy with every player's cards hidden, suitable for observers.
func (m *Match) Redacted() *Match {
	out := m.Clone()
	for t := range out.Teams {
		for i := range out.Teams[t].Players {
			out.Teams[t].Players[i].Hand = nil
			out.Teams[t].Players[i].Dealt = nil
		}
	}
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
