package domain

import (
	"fmt"
	"strings"
)

// Suit is one of the four Spanish-deck suits.
type Suit string

const (
	SuitSwords Suit = "swords"
	SuitClubs  Suit = "clubs"
	SuitCups   Suit = "cups"
	SuitGolds  Suit = "golds"
)

// Suits lists every suit in deck-building order.
var Suits = []Suit{SuitSwords, SuitClubs, SuitCups, SuitGolds}

// Faces lists the faces present in a Truco deck. Eights and nines are removed.
var Faces = []int{1, 2, 3, 4, 5, 6, 7, 10, 11, 12}

// Card is a single playing card. Face 10 is the jack, 11 the knave and 12 the king.
type Card struct {
	Suit Suit `json:"suit"`
	Face int  `json:"face"`
}

// Valid reports whether the card belongs to the 40-card deck.
func (c Card) Valid() bool {
	switch c.Suit {
	case SuitSwords, SuitClubs, SuitCups, SuitGolds:
	default:
		return false
	}
	return (c.Face >= 1 && c.Face <= 7) || (c.Face >= 10 && c.Face <= 12)
}

func (c Card) String() string {
	return fmt.Sprintf("%d of %s", c.Face, c.Suit)
}

// ParseSuit accepts suit names case-insensitively.
func ParseSuit(s string) (Suit, error) {
	switch Suit(strings.ToLower(strings.TrimSpace(s))) {
	case SuitSwords:
		return SuitSwords, nil
	case SuitClubs:
		return SuitClubs, nil
	case SuitCups:
		return SuitCups, nil
	case SuitGolds:
		return SuitGolds, nil
	}
	return "", fmt.Errorf("unknown suit %q", s)
}

// TrickRank returns the card's strength when comparing plays inside a trick.
// Higher wins. Several cards share a rank; the earliest play wins those ties.
func TrickRank(c Card) int {
	switch {
	case c.Face == 1 && c.Suit == SuitSwords:
		return 14
	case c.Face == 1 && c.Suit == SuitClubs:
		return 13
	case c.Face == 7 && c.Suit == SuitSwords:
		return 12
	case c.Face == 7 && c.Suit == SuitGolds:
		return 11
	}
	switch c.Face {
	case 3:
		return 10
	case 2:
		return 9
	case 1:
		return 8
	case 12:
		return 7
	case 11:
		return 6
	case 10:
		return 5
	case 7:
		return 4
	case 6:
		return 3
	case 5:
		return 2
	case 4:
		return 1
	}
	return 0
}

// EnvidoValue is the card's contribution to envido: its face for 1-7, zero for figures.
func EnvidoValue(c Card) int {
	if c.Face >= 1 && c.Face <= 7 {
		return c.Face
	}
	return 0
}

// EnvidoTotal scores a hand for envido. Two or more cards of one suit are worth
// 20 plus the two highest values of that suit; otherwise the hand is worth its
// single highest value. Hands with fewer than three cards are scored the same way.
func EnvidoTotal(hand []Card) int {
	bySuit := make(map[Suit][]int, len(Suits))
	best := 0
	for _, c := range hand {
		v := EnvidoValue(c)
		bySuit[c.Suit] = append(bySuit[c.Suit], v)
		if v > best {
			best = v
		}
	}
	for _, values := range bySuit {
		if len(values) < 2 {
			continue
		}
		first, second := topTwo(values)
		if total := 20 + first + second; total > best {
			best = total
		}
	}
	return best
}

// HasFlor reports whether the hand holds three cards of a single suit.
func HasFlor(hand []Card) bool {
	if len(hand) != 3 {
		return false
	}
	return hand[0].Suit == hand[1].Suit && hand[1].Suit == hand[2].Suit
}

// FlorTotal is 20 plus the envido value of all three cards, or zero without flor.
func FlorTotal(hand []Card) int {
	if !HasFlor(hand) {
		return 0
	}
	total := 20
	for _, c := range hand {
		total += EnvidoValue(c)
	}
	return total
}

func topTwo(values []int) (int, int) {
	first, second := -1, -1
	for _, v := range values {
		switch {
		case v > first:
			first, second = v, first
		case v > second:
			second = v
		}
	}
	return first, second
}
