package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
	"github.com/fabianaguero/truco/internal/ports/memstore"
	"github.com/fabianaguero/truco/internal/rules"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestService(store ports.MatchStore, roster ports.RosterStore) *Service {
	return NewService(store, roster, rules.NewSource(rules.Builtin(), nil), rand.New(rand.NewSource(42)),
		WithIDGenerator(sequentialIDs()))
}

func headsUpSpec() RosterSpec {
	return RosterSpec{Teams: []TeamSpec{
		{Name: "Nosotros", Players: []PlayerSpec{{Name: "Ana"}}},
		{Name: "Ellos", Players: []PlayerSpec{{Name: "Beto"}}},
	}}
}

// rig replaces both hands of a stored match.
func rig(t *testing.T, store *memstore.MatchStore, matchID string, h1, h2 []domain.Card) *domain.Match {
	t.Helper()
	ctx := context.Background()
	m, err := store.Load(ctx, matchID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	setHand(m, m.Turn.Seats[0], h1)
	setHand(m, m.Turn.Seats[1], h2)
	saved, err := store.Save(ctx, m, m.Version)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return saved
}

func TestCreateMatchSnapshotsRoster(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMatchStore()
	roster := memstore.NewRosterStore()
	_ = roster.PutPlayer(ctx, ports.RosterPlayer{ID: "u1", Name: "Ana"})
	_ = roster.PutPlayer(ctx, ports.RosterPlayer{ID: "u2", Name: "Beto"})
	_ = roster.PutTeam(ctx, ports.RosterTeam{ID: "t1", Name: "Los Pibes", PlayerIDs: []string{"u1"}})
	svc := newTestService(store, roster)

	st, evs, err := svc.CreateMatch(ctx, RosterSpec{Teams: []TeamSpec{
		{ID: "t1"},
		{Name: "Visitantes", Players: []PlayerSpec{{ID: "u2"}}},
	}})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	m := st.Match
	if m.Teams[0].Name != "Los Pibes" || m.Teams[0].Players[0].Name != "Ana" {
		t.Fatalf("team A = %+v", m.Teams[0])
	}
	if m.Teams[1].Players[0].ID != "u2" || m.ScoreLimit != domain.DefaultScoreLimit {
		t.Fatalf("team B = %+v limit %d", m.Teams[1], m.ScoreLimit)
	}
	if m.Version == "" {
		t.Fatal("created match has no version")
	}
	if len(st.Legal) != 2 || !st.Legal["u1"].Has(domain.CanPlayCard) || st.Legal["u2"].Has(domain.CanPlayCard) {
		t.Fatalf("legal = %+v", st.Legal)
	}
	if evs[0].Kind != EventMatchCreated {
		t.Fatalf("first event = %s, want match_created", evs[0].Kind)
	}

	// Roster edits after creation do not reach the match.
	_ = roster.PutPlayer(ctx, ports.RosterPlayer{ID: "u1", Name: "Renamed"})
	again, err := svc.GetState(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if again.Match.Teams[0].Players[0].Name != "Ana" {
		t.Fatal("roster edit leaked into match")
	}
}

func TestCreateMatchErrors(t *testing.T) {
	tests := []struct {
		name string
		spec RosterSpec
		want error
	}{
		{"odd random roster", RosterSpec{RandomTeams: true, Players: []PlayerSpec{{Name: "a"}, {Name: "b"}, {Name: "c"}}}, ErrValidation},
		{"empty random roster", RosterSpec{RandomTeams: true}, ErrValidation},
		{"one team", RosterSpec{Teams: []TeamSpec{{Name: "solo", Players: []PlayerSpec{{Name: "a"}}}}}, ErrValidation},
		{"empty team", RosterSpec{Teams: []TeamSpec{{Name: "x", Players: []PlayerSpec{{Name: "a"}}}, {Name: "y"}}}, ErrValidation},
		{"uneven teams", RosterSpec{Teams: []TeamSpec{
			{Players: []PlayerSpec{{Name: "a"}, {Name: "b"}}},
			{Players: []PlayerSpec{{Name: "c"}}},
		}}, ErrValidation},
		{"nameless guest", RosterSpec{Teams: []TeamSpec{{Players: []PlayerSpec{{}}}, {Players: []PlayerSpec{{Name: "b"}}}}}, ErrValidation},
		{"unknown player", RosterSpec{Teams: []TeamSpec{{Players: []PlayerSpec{{ID: "ghost"}}}, {Players: []PlayerSpec{{Name: "b"}}}}}, ErrNotFound},
		{"unknown team", RosterSpec{Teams: []TeamSpec{{ID: "ghost"}, {Players: []PlayerSpec{{Name: "b"}}}}}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.NewMatchStore()
			svc := newTestService(store, memstore.NewRosterStore())
			_, _, err := svc.CreateMatch(context.Background(), tt.spec)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if list, _ := store.List(context.Background(), 0); len(list) != 0 {
				t.Fatalf("a match was stored despite the error")
			}
		})
	}
}

func TestCreateMatchRandomTeams(t *testing.T) {
	svc := newTestService(memstore.NewMatchStore(), nil)
	st, _, err := svc.CreateMatch(context.Background(), RosterSpec{
		RandomTeams: true,
		Players:     []PlayerSpec{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}},
		ScoreLimit:  15,
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	m := st.Match
	if len(m.Teams[0].Players) != 2 || len(m.Teams[1].Players) != 2 {
		t.Fatalf("team sizes %d and %d, want 2 and 2", len(m.Teams[0].Players), len(m.Teams[1].Players))
	}
	if m.Teams[0].Name != "Team 1" || m.Teams[1].Name != "Team 2" {
		t.Fatalf("team names %q %q", m.Teams[0].Name, m.Teams[1].Name)
	}
	if m.ScoreLimit != 15 {
		t.Fatalf("ScoreLimit = %d, want 15", m.ScoreLimit)
	}
	for i, id := range m.Turn.Seats {
		if m.TeamOf(id) != i%2 {
			t.Fatalf("seats %v do not alternate teams", m.Turn.Seats)
		}
	}
}

func TestGetStateAndActionsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memstore.NewMatchStore(), nil)
	if _, err := svc.GetState(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetState err = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Fold(ctx, "missing", "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fold err = %v, want ErrNotFound", err)
	}
	st, _, err := svc.CreateMatch(ctx, headsUpSpec())
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if _, _, err := svc.PlayCard(ctx, st.Match.ID, "stranger", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("PlayCard err = %v, want ErrNotFound", err)
	}
	if _, err := svc.PlayerView(ctx, st.Match.ID, "stranger"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("PlayerView err = %v, want ErrNotFound", err)
	}
}

func TestServicePlaysHandToCompletion(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMatchStore()
	svc := newTestService(store, nil)
	st, _, err := svc.CreateMatch(ctx, headsUpSpec())
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	id := st.Match.ID
	mano, other := st.Match.Turn.Seats[0], st.Match.Turn.Seats[1]
	rig(t, store, id, strongHand, weakHand)

	if _, _, err := svc.CallBid(ctx, id, mano, domain.CallTruco); err != nil {
		t.Fatalf("CallBid: %v", err)
	}
	st, evs, err := svc.Accept(ctx, id, other)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if evs[0].Kind != EventBidAccepted || !st.Legal[mano].Has(domain.CanPlayCard) {
		t.Fatalf("after accept events %v legal %v", evs, st.Legal[mano].List())
	}
	for i := 0; i < 2; i++ {
		if _, _, err := svc.PlayCard(ctx, id, mano, 0); err != nil {
			t.Fatalf("PlayCard mano: %v", err)
		}
		if st, evs, err = svc.PlayCard(ctx, id, other, 0); err != nil {
			t.Fatalf("PlayCard other: %v", err)
		}
	}
	team := st.Match.TeamOf(mano)
	if st.Match.Teams[team].Score != 2 {
		t.Fatalf("score = %d, want 2", st.Match.Teams[team].Score)
	}
	kinds := map[EventKind]bool{}
	for _, ev := range evs {
		kinds[ev.Kind] = true
	}
	for _, k := range []EventKind{EventCardPlayed, EventTrickResolved, EventHandResolved, EventHandStarted, EventHandDealt} {
		if !kinds[k] {
			t.Fatalf("missing %s in %v", k, evs)
		}
	}
	notes := Notifications(id, evs)
	if len(notes) != len(evs) || notes[0].MatchID != id || notes[0].Type != string(evs[0].Kind) {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestRefusedActionKeepsStoredVersion(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMatchStore()
	svc := newTestService(store, nil)
	st, _, _ := svc.CreateMatch(ctx, headsUpSpec())
	other := st.Match.Turn.Seats[1]

	if _, _, err := svc.PlayCard(ctx, st.Match.ID, other, 0); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("err = %v, want ErrIllegalAction", err)
	}
	after, _ := svc.GetState(ctx, st.Match.ID)
	if after.Match.Version != st.Match.Version {
		t.Fatalf("version moved from %s to %s on a refused action", st.Match.Version, after.Match.Version)
	}
}

// racingStore lets a competing write land between a mutation's load and save.
type racingStore struct {
	*memstore.MatchStore
	race func()
}

func (r *racingStore) Save(ctx context.Context, m *domain.Match, expected string) (*domain.Match, error) {
	if race := r.race; race != nil {
		r.race = nil
		race()
	}
	return r.MatchStore.Save(ctx, m, expected)
}

func TestConcurrentMutationConflicts(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MatchStore: memstore.NewMatchStore()}
	svc := newTestService(store, nil)
	st, _, err := svc.CreateMatch(ctx, headsUpSpec())
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	id := st.Match.ID
	mano, other := st.Match.Turn.Seats[0], st.Match.Turn.Seats[1]

	var raceErr error
	store.race = func() {
		_, _, raceErr = svc.Fold(ctx, id, other)
	}
	_, _, err = svc.CallBid(ctx, id, mano, domain.CallTruco)
	if raceErr != nil {
		t.Fatalf("competing fold: %v", raceErr)
	}
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}

	final, _ := svc.GetState(ctx, id)
	if final.Match.Truco.Level != domain.LevelNone || final.Match.HandNumber != 2 {
		t.Fatalf("only the fold should have committed: truco %+v hand %d", final.Match.Truco, final.Match.HandNumber)
	}
	// The loser retries against fresh state.
	retryMano := final.Match.Turn.Current()
	if _, _, err := svc.CallBid(ctx, id, retryMano, domain.CallTruco); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPlayerViewShowsOwnHandOnly(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMatchStore()
	svc := newTestService(store, nil)
	st, _, _ := svc.CreateMatch(ctx, headsUpSpec())
	mano := st.Match.Turn.Seats[0]
	rig(t, store, st.Match.ID, envido33, weakHand)

	v, err := svc.PlayerView(ctx, st.Match.ID, mano)
	if err != nil {
		t.Fatalf("PlayerView: %v", err)
	}
	if len(v.Hand) != 3 || !v.IsTurn || v.Legal.EnvidoPoints != 33 {
		t.Fatalf("view = %+v", v)
	}

	pub := st.Public()
	for _, team := range pub.Match.Teams {
		for _, p := range team.Players {
			if p.Hand != nil {
				t.Fatal("public state exposes a hand")
			}
		}
	}
	for _, ps := range pub.Legal {
		if ps.EnvidoPoints != 0 {
			t.Fatal("public state exposes envido points")
		}
	}
}

func TestListMatches(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memstore.NewMatchStore(), nil)
	for i := 0; i < 3; i++ {
		if _, _, err := svc.CreateMatch(ctx, headsUpSpec()); err != nil {
			t.Fatalf("CreateMatch: %v", err)
		}
	}
	list, err := svc.ListMatches(ctx, 2)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
}
