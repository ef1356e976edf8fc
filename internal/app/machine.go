package app

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/rules"
)

// Machine applies Truco transitions to a match. It mutates the match it is
// given and nothing else; callers hand it a private copy and persist the
// result. Every rejected action returns before the first write.
type Machine struct {
	rules *rules.Source
	rng   *lockedRand
}

// NewMachine returns a Machine drawing permissions from src and shuffling with rng.
func NewMachine(src *rules.Source, rng *rand.Rand) *Machine {
	return &Machine{rules: src, rng: &lockedRand{r: rng}}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

func (l *lockedRand) Perm(n int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Perm(n)
}

func errNotInMatch(matchID, playerID string) error {
	return fmt.Errorf("%w: player %s is not in match %s", ErrNotFound, playerID, matchID)
}

// StartMatch validates the teams of a freshly built match and deals its first hand.
func (mc *Machine) StartMatch(m *domain.Match) ([]Event, error) {
	a, b := len(m.Teams[0].Players), len(m.Teams[1].Players)
	if a == 0 || b == 0 {
		return nil, invalid("both teams need at least one player")
	}
	if a != b {
		return nil, invalid("teams must be the same size, got %d and %d", a, b)
	}
	if a > MaxPlayersPerTeam {
		return nil, invalid("teams have at most %d players, got %d", MaxPlayersPerTeam, a)
	}
	if m.ScoreLimit <= 0 {
		m.ScoreLimit = domain.DefaultScoreLimit
	}
	m.HandNumber = 0
	m.Plays, m.Tricks = nil, nil
	m.Winner, m.HandWinner, m.LastHand = nil, nil, nil
	for t := range m.Teams {
		m.Teams[t].Score = 0
	}

	events := []Event{{
		Kind: EventMatchCreated,
		Payload: MatchCreatedPayload{
			MatchID:    m.ID,
			Teams:      [2]string{m.Teams[0].Name, m.Teams[1].Name},
			ScoreLimit: m.ScoreLimit,
		},
	}}
	dealt, err := mc.startHand(m)
	if err != nil {
		return nil, err
	}
	return append(events, dealt...), nil
}

// startHand resets per-hand state, deals and seats the players. The mano
// (first to act) moves one seat each hand.
func (mc *Machine) startHand(m *domain.Match) ([]Event, error) {
	m.HandNumber++
	m.TrickNumber = 1
	m.Phase = domain.PhaseDealt
	m.HandValue = domain.BaseStake(domain.FamilyTruco)
	m.Truco, m.Envido, m.Flor = domain.Bid{}, domain.Bid{}, domain.Bid{}
	m.HandWinner = nil

	turn, err := domain.NewTurnOrder(teamIDs(m.Teams[0]), teamIDs(m.Teams[1]), m.HandNumber-1)
	if err != nil {
		return nil, invalid("%v", err)
	}
	m.Turn = turn
	m.Mano = turn.Current()

	deck := domain.NewDeck()
	deck.Shuffle(mc.rng)
	hands, err := deck.Deal(len(turn.Seats), domain.CardsPerHand)
	if err != nil {
		return nil, err
	}

	events := []Event{{
		Kind:    EventHandStarted,
		Payload: HandStartedPayload{Hand: m.HandNumber, Mano: m.Mano, Seats: append([]string(nil), turn.Seats...)},
	}}
	for i, id := range turn.Seats {
		p, _, _ := m.Player(id)
		p.Hand = hands[i]
		p.Dealt = append([]domain.Card(nil), hands[i]...)
		events = append(events, Event{
			Kind:       EventHandDealt,
			Payload:    HandDealtPayload{PlayerID: id, Hand: append([]domain.Card(nil), hands[i]...)},
			Recipients: []string{id},
		})
	}
	return events, nil
}

// PlayCard lays the card at cardIndex of the player's hand and resolves the
// trick once every player has played.
func (mc *Machine) PlayCard(m *domain.Match, playerID string, cardIndex int) ([]Event, error) {
	p, err := mc.check(m, playerID, domain.CanPlayCard)
	if err != nil {
		return nil, err
	}
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		return nil, illegal("card index %d out of range for a hand of %d", cardIndex, len(p.Hand))
	}

	card := p.Hand[cardIndex]
	p.Hand = append(append([]domain.Card(nil), p.Hand[:cardIndex]...), p.Hand[cardIndex+1:]...)
	m.Plays = append(m.Plays, domain.Play{Hand: m.HandNumber, Trick: m.TrickNumber, PlayerID: playerID, Card: card})
	m.Phase = domain.PhaseTrickInProgress
	m.Turn.Advance()

	events := []Event{{
		Kind: EventCardPlayed,
		Payload: CardPlayedPayload{
			PlayerID:       playerID,
			Card:           card,
			Hand:           m.HandNumber,
			Trick:          m.TrickNumber,
			NextTurnPlayer: m.Turn.Current(),
		},
	}}
	if len(m.CurrentTrickPlays()) == m.PlayerCount() {
		events = append(events, mc.resolveTrick(m)...)
	}
	return events, nil
}

// resolveTrick credits the highest card of the trick; ties go to the earlier play.
func (mc *Machine) resolveTrick(m *domain.Match) []Event {
	plays := m.CurrentTrickPlays()
	best := plays[0]
	for _, pl := range plays[1:] {
		if domain.TrickRank(pl.Card) > domain.TrickRank(best.Card) {
			best = pl
		}
	}
	team := m.TeamOf(best.PlayerID)
	m.Tricks = append(m.Tricks, domain.TrickResult{
		Hand: m.HandNumber, Trick: m.TrickNumber, WinnerID: best.PlayerID, WinnerTeam: team,
	})
	events := []Event{{
		Kind:    EventTrickResolved,
		Payload: TrickResolvedPayload{Hand: m.HandNumber, Trick: m.TrickNumber, WinnerID: best.PlayerID, WinnerTeam: team},
	}}

	wins := m.TrickWins()
	if wins[team] >= TricksToWinHand || m.TrickNumber >= TricksPerHand {
		winner := 0
		if wins[1] > wins[0] {
			winner = 1
		}
		return append(events, mc.resolveHand(m, winner, m.HandValue, domain.OutcomeTricks)...)
	}
	m.TrickNumber++
	return events
}

// CallBid sings a call. The turn passes to the next player of the other team,
// who must answer; trick play resumes from the interrupted seat afterwards.
func (mc *Machine) CallBid(m *domain.Match, playerID string, call domain.Call) ([]Event, error) {
	perm := domain.PermissionFor(call)
	if perm == "" {
		return nil, illegal("unknown call %q", call)
	}
	if _, err := mc.check(m, playerID, perm); err != nil {
		return nil, err
	}

	fam := call.Family()
	bid := m.Bid(fam)
	team := m.TeamOf(playerID)
	responder, ok := m.Turn.NextAfter(playerID, func(id string) bool { return m.TeamOf(id) != team })
	if !ok {
		return nil, illegal("no opponent can answer %s", call)
	}
	resume := playerID
	if bid.Pending {
		// Raising answers the previous call with an implicit accept.
		resume = bid.ResumeSeat
		if fam == domain.FamilyTruco {
			m.HandValue = bid.Value
		}
	}

	*bid = domain.Bid{
		Level:      call.Level(),
		Call:       call,
		Pending:    true,
		CalledBy:   playerID,
		CallerTeam: team,
		Stake:      domain.CallStake(call, m),
		Value:      domain.CallValue(call, m),
		ResumeSeat: resume,
	}
	if err := m.Turn.SetCurrent(responder); err != nil {
		return nil, err
	}

	return []Event{{
		Kind: EventBidCalled,
		Payload: BidCalledPayload{
			PlayerID:  playerID,
			Call:      call,
			Family:    fam,
			Stake:     bid.Stake,
			Value:     bid.Value,
			Responder: responder,
		},
	}}, nil
}

// Accept takes the pending call. Truco raises the hand's worth; envido and
// flor are settled on the spot from the hands as dealt.
func (mc *Machine) Accept(m *domain.Match, playerID string) ([]Event, error) {
	if _, err := mc.check(m, playerID, domain.CanAccept); err != nil {
		return nil, err
	}
	fam := m.PendingFamilies()[0]
	bid := m.Bid(fam)
	bid.Pending = false
	bid.Accepted = true

	events := []Event{{
		Kind:    EventBidAccepted,
		Payload: BidAnsweredPayload{PlayerID: playerID, Call: bid.Call, Family: fam},
	}}

	switch fam {
	case domain.FamilyTruco:
		m.HandValue = bid.Value
	case domain.FamilyEnvido:
		winner := disputeWinner(m, domain.EnvidoTotal)
		ev, finished := mc.award(m, winner, bid.Value, string(bid.Call))
		events = append(events, ev...)
		if finished {
			return events, nil
		}
	case domain.FamilyFlor:
		winner := disputeWinner(m, domain.FlorTotal)
		ev, finished := mc.award(m, winner, bid.Value, string(bid.Call))
		events = append(events, ev...)
		if finished {
			return events, nil
		}
	}

	if err := m.Turn.SetCurrent(bid.ResumeSeat); err != nil {
		return nil, err
	}
	return events, nil
}

// Reject declines the pending call: its caller takes the stake and the hand ends.
func (mc *Machine) Reject(m *domain.Match, playerID string) ([]Event, error) {
	if _, err := mc.check(m, playerID, domain.CanReject); err != nil {
		return nil, err
	}
	fam := m.PendingFamilies()[0]
	bid := m.Bid(fam)
	bid.Pending = false

	events := []Event{{
		Kind:    EventBidRejected,
		Payload: BidAnsweredPayload{PlayerID: playerID, Call: bid.Call, Family: fam},
	}}
	return append(events, mc.resolveHand(m, bid.CallerTeam, bid.Stake, domain.OutcomeRejected)...), nil
}

// Fold concedes the hand. The other team takes what the hand is worth, the
// truco stake if a truco call is unanswered, plus the stake of an envido or
// flor call they have pending.
func (mc *Machine) Fold(m *domain.Match, playerID string) ([]Event, error) {
	if _, err := mc.check(m, playerID, domain.CanFold); err != nil {
		return nil, err
	}
	team := m.TeamOf(playerID)
	opp := 1 - team

	points := m.HandValue
	if m.Truco.Pending {
		points = m.Truco.Stake
	}
	for _, f := range []domain.BidFamily{domain.FamilyEnvido, domain.FamilyFlor} {
		if b := m.Bid(f); b.Pending && b.CallerTeam == opp {
			points += b.Stake
		}
	}
	for _, f := range domain.Families {
		m.Bid(f).Pending = false
	}

	events := []Event{{
		Kind:    EventHandFolded,
		Payload: HandFoldedPayload{PlayerID: playerID, Team: team},
	}}
	return append(events, mc.resolveHand(m, opp, points, domain.OutcomeFolded)...), nil
}

// award adds points to a team and finishes the match the moment it reaches the limit.
func (mc *Machine) award(m *domain.Match, team, points int, reason string) ([]Event, bool) {
	m.Teams[team].Score += points
	events := []Event{{
		Kind:    EventPointsAwarded,
		Payload: PointsAwardedPayload{Team: team, Points: points, Reason: reason, Scores: scores(m)},
	}}
	if m.Teams[team].Score < m.ScoreLimit {
		return events, false
	}
	return append(events, finish(m, team)...), true
}

func finish(m *domain.Match, team int) []Event {
	m.Phase = domain.PhaseFinished
	w := team
	m.Winner = &w
	for _, f := range domain.Families {
		m.Bid(f).Pending = false
	}
	return []Event{{
		Kind:    EventMatchFinished,
		Payload: MatchFinishedPayload{WinnerTeam: team, Scores: scores(m)},
	}}
}

// resolveHand scores the hand for team and either finishes the match or deals the next hand.
func (mc *Machine) resolveHand(m *domain.Match, team, points int, outcome domain.HandOutcome) []Event {
	m.Phase = domain.PhaseHandResolved
	w := team
	m.HandWinner = &w
	m.Teams[team].Score += points
	m.LastHand = &domain.HandResult{Hand: m.HandNumber, WinnerTeam: team, Points: points, Outcome: outcome}

	events := []Event{{
		Kind: EventHandResolved,
		Payload: HandResolvedPayload{
			Hand: m.HandNumber, WinnerTeam: team, Points: points, Outcome: outcome, Scores: scores(m),
		},
	}}
	if m.Teams[team].Score >= m.ScoreLimit {
		return append(events, finish(m, team)...)
	}
	next, err := mc.startHand(m)
	if err != nil {
		// Teams were validated at creation; a failing deal leaves the hand resolved.
		return events
	}
	return append(events, next...)
}

// disputeWinner compares the best total of each team using the hands as
// dealt. The mano's team wins ties, including when neither team scores.
func disputeWinner(m *domain.Match, total func([]domain.Card) int) int {
	var best [2]int
	for t := range m.Teams {
		for _, p := range m.Teams[t].Players {
			if v := total(p.Dealt); v > best[t] {
				best[t] = v
			}
		}
	}
	switch {
	case best[0] > best[1]:
		return 0
	case best[1] > best[0]:
		return 1
	}
	return m.TeamOf(m.Mano)
}

func teamIDs(t domain.Team) []string {
	ids := make([]string, 0, len(t.Players))
	for _, p := range t.Players {
		ids = append(ids, p.ID)
	}
	return ids
}
