package nakama

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
)

func storedMatch(id string) *domain.Match {
	return &domain.Match{
		ID: id,
		Teams: [2]domain.Team{
			{ID: "a", Name: "A", Players: []domain.Player{{ID: "p1", Name: "P1", Hand: []domain.Card{{Suit: domain.SuitSwords, Face: 1}}}}},
			{ID: "b", Name: "B", Players: []domain.Player{{ID: "p2", Name: "P2"}}},
		},
		Turn:       domain.TurnOrder{Seats: []string{"p1", "p2"}},
		HandNumber: 1,
		ScoreLimit: 30,
		Phase:      domain.PhaseDealt,
		HandValue:  1,
	}
}

func TestMatchStore_CreateLoadSave(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(newFakeNK())

	created, err := store.Create(ctx, storedMatch("m1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Version == "" {
		t.Fatal("Create returned no version")
	}
	if _, err := store.Create(ctx, storedMatch("m1")); !errors.Is(err, ports.ErrAlreadyExists) {
		t.Fatalf("second Create err = %v, want ErrAlreadyExists", err)
	}

	loaded, err := store.Load(ctx, "m1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Version != created.Version || len(loaded.Teams[0].Players[0].Hand) != 1 {
		t.Fatalf("Load = %+v, want round trip of created match", loaded)
	}

	loaded.Teams[0].Score = 3
	saved, err := store.Save(ctx, loaded, created.Version)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version == created.Version {
		t.Fatal("Save did not advance the version")
	}

	// A writer still holding the first version loses.
	stale := loaded.Clone()
	stale.Teams[1].Score = 9
	if _, err := store.Save(ctx, stale, created.Version); !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("stale Save err = %v, want ErrVersionConflict", err)
	}
	final, _ := store.Load(ctx, "m1")
	if final.Teams[0].Score != 3 || final.Teams[1].Score != 0 {
		t.Fatalf("scores = %d/%d, want 3/0", final.Teams[0].Score, final.Teams[1].Score)
	}

	if _, err := store.Save(ctx, final, ""); !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("Save without version err = %v, want ErrVersionConflict", err)
	}
}

func TestMatchStore_LoadMissing(t *testing.T) {
	store := NewMatchStore(newFakeNK())
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Load err = %v, want ErrNotFound", err)
	}
}

func TestMatchStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(newFakeNK())
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		if _, err := store.Create(ctx, storedMatch(id)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "mid" {
		t.Fatalf("List = %+v, want [new mid]", list)
	}
	if list[0].Teams != [2]string{"A", "B"} {
		t.Fatalf("summary teams = %v", list[0].Teams)
	}
}
