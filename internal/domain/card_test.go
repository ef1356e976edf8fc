package domain

import "testing"

func TestTrickRankOrdering(t *testing.T) {
	tests := []struct {
		card Card
		want int
	}{
		{Card{SuitSwords, 1}, 14},
		{Card{SuitClubs, 1}, 13},
		{Card{SuitSwords, 7}, 12},
		{Card{SuitGolds, 7}, 11},
		{Card{SuitCups, 3}, 10},
		{Card{SuitSwords, 3}, 10},
		{Card{SuitGolds, 2}, 9},
		{Card{SuitGolds, 1}, 8},
		{Card{SuitCups, 1}, 8},
		{Card{SuitClubs, 12}, 7},
		{Card{SuitCups, 11}, 6},
		{Card{SuitSwords, 10}, 5},
		{Card{SuitCups, 7}, 4},
		{Card{SuitClubs, 7}, 4},
		{Card{SuitGolds, 6}, 3},
		{Card{SuitSwords, 5}, 2},
		{Card{SuitClubs, 4}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.card.String(), func(t *testing.T) {
			if got := TrickRank(tt.card); got != tt.want {
				t.Fatalf("TrickRank(%v) = %d, want %d", tt.card, got, tt.want)
			}
		})
	}
}

func TestTrickRankTiesOnlyInMiddleRanks(t *testing.T) {
	seen := map[int][]Card{}
	for _, c := range NewDeck().Cards() {
		r := TrickRank(c)
		if r < 1 || r > 14 {
			t.Fatalf("TrickRank(%v) = %d, out of range", c, r)
		}
		seen[r] = append(seen[r], c)
	}
	for _, top := range []int{14, 13, 12, 11} {
		if len(seen[top]) != 1 {
			t.Fatalf("rank %d shared by %v, want a single card", top, seen[top])
		}
	}
	if len(seen[10]) != 4 {
		t.Fatalf("rank 10 held by %d cards, want 4 threes", len(seen[10]))
	}
}

func TestEnvidoValue(t *testing.T) {
	for _, f := range Faces {
		c := Card{SuitCups, f}
		want := f
		if f >= 10 {
			want = 0
		}
		if got := EnvidoValue(c); got != want {
			t.Fatalf("EnvidoValue(%v) = %d, want %d", c, got, want)
		}
	}
}

func TestEnvidoTotal(t *testing.T) {
	tests := []struct {
		name string
		hand []Card
		want int
	}{
		{
			name: "two of a suit",
			hand: []Card{{SuitSwords, 7}, {SuitSwords, 6}, {SuitGolds, 1}},
			want: 33,
		},
		{
			name: "three of a suit uses best two",
			hand: []Card{{SuitCups, 5}, {SuitCups, 2}, {SuitCups, 4}},
			want: 29,
		},
		{
			name: "figures count zero",
			hand: []Card{{SuitClubs, 12}, {SuitClubs, 11}, {SuitGolds, 3}},
			want: 20,
		},
		{
			name: "no shared suit",
			hand: []Card{{SuitClubs, 4}, {SuitGolds, 6}, {SuitSwords, 12}},
			want: 6,
		},
		{
			name: "all figures unmatched",
			hand: []Card{{SuitClubs, 10}, {SuitGolds, 11}, {SuitSwords, 12}},
			want: 0,
		},
		{
			name: "partial hand",
			hand: []Card{{SuitCups, 7}},
			want: 7,
		},
		{
			name: "empty hand",
			hand: nil,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnvidoTotal(tt.hand); got != tt.want {
				t.Fatalf("EnvidoTotal(%v) = %d, want %d", tt.hand, got, tt.want)
			}
		})
	}
}

func TestHasFlor(t *testing.T) {
	tests := []struct {
		name string
		hand []Card
		want bool
	}{
		{"one suit", []Card{{SuitGolds, 1}, {SuitGolds, 5}, {SuitGolds, 12}}, true},
		{"two suits", []Card{{SuitGolds, 1}, {SuitGolds, 5}, {SuitCups, 12}}, false},
		{"two cards", []Card{{SuitGolds, 1}, {SuitGolds, 5}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasFlor(tt.hand); got != tt.want {
				t.Fatalf("HasFlor(%v) = %v, want %v", tt.hand, got, tt.want)
			}
		})
	}
	if got := FlorTotal([]Card{{SuitGolds, 1}, {SuitGolds, 5}, {SuitGolds, 12}}); got != 26 {
		t.Fatalf("FlorTotal = %d, want 26", got)
	}
}

func TestCardValid(t *testing.T) {
	if (Card{SuitCups, 8}).Valid() || (Card{SuitCups, 9}).Valid() {
		t.Fatal("eights and nines are not in the deck")
	}
	if (Card{"hearts", 1}).Valid() {
		t.Fatal("unknown suit accepted")
	}
	if !(Card{SuitClubs, 12}).Valid() {
		t.Fatal("king of clubs rejected")
	}
}

func TestParseSuit(t *testing.T) {
	s, err := ParseSuit(" Golds ")
	if err != nil || s != SuitGolds {
		t.Fatalf("ParseSuit = %v, %v", s, err)
	}
	if _, err := ParseSuit("hearts"); err == nil {
		t.Fatal("expected error for unknown suit")
	}
}
