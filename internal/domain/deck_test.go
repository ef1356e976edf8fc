package domain

import (
	"errors"
	"math/rand"
	"testing"
)

func TestNewDeckHasFortyDistinctCards(t *testing.T) {
	d := NewDeck()
	if d.Len() != DeckSize {
		t.Fatalf("Len() = %d, want %d", d.Len(), DeckSize)
	}
	seen := map[Card]bool{}
	for _, c := range d.Cards() {
		if !c.Valid() {
			t.Fatalf("invalid card %v", c)
		}
		if seen[c] {
			t.Fatalf("duplicate card %v", c)
		}
		seen[c] = true
	}
}

func TestShuffleKeepsCards(t *testing.T) {
	d := NewDeck()
	before := d.Cards()
	d.Shuffle(rand.New(rand.NewSource(7)))
	after := d.Cards()
	if len(after) != len(before) {
		t.Fatalf("shuffle changed size to %d", len(after))
	}
	moved := false
	counts := map[Card]int{}
	for i := range before {
		counts[before[i]]++
		counts[after[i]]--
		if before[i] != after[i] {
			moved = true
		}
	}
	for c, n := range counts {
		if n != 0 {
			t.Fatalf("card %v count off by %d", c, n)
		}
	}
	if !moved {
		t.Fatal("shuffle left deck in original order")
	}
}

func TestDealInSeatOrder(t *testing.T) {
	d := NewDeck()
	top := d.Cards()
	hands, err := d.Deal(2, 3)
	if err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if len(hands) != 2 || len(hands[0]) != 3 || len(hands[1]) != 3 {
		t.Fatalf("unexpected hand shape %v", hands)
	}
	// Seat 0 receives cards 0, 2, 4 and seat 1 receives 1, 3, 5.
	for round := 0; round < 3; round++ {
		if hands[0][round] != top[round*2] || hands[1][round] != top[round*2+1] {
			t.Fatalf("round %d dealt out of seat order", round)
		}
	}
	if d.Len() != DeckSize-6 {
		t.Fatalf("Len() = %d after deal, want %d", d.Len(), DeckSize-6)
	}
}

func TestDealExhausted(t *testing.T) {
	d := NewDeck()
	if _, err := d.Deal(4, 10); err != nil {
		t.Fatalf("full deal: %v", err)
	}
	if _, err := d.Deal(1, 1); !errors.Is(err, ErrDeckExhausted) {
		t.Fatalf("Deal on empty deck err = %v, want ErrDeckExhausted", err)
	}
}
