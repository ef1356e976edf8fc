package domain

import (
	"errors"
	"fmt"
)

// DeckSize is the number of cards in a Truco deck.
const DeckSize = 40

// CardsPerHand is how many cards each player receives.
const CardsPerHand = 3

var ErrDeckExhausted = errors.New("not enough cards left in deck")

// Shuffler is satisfied by *math/rand.Rand.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Deck is an ordered pile of cards dealt from the top.
type Deck struct {
	cards []Card
}

// NewDeck returns the 40-card deck ordered by suit then face.
func NewDeck() *Deck {
	cards := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for _, f := range Faces {
			cards = append(cards, Card{Suit: s, Face: f})
		}
	}
	return &Deck{cards: cards}
}

// Len returns the number of undealt cards.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards returns a copy of the undealt cards, top first.
func (d *Deck) Cards() []Card {
	return append([]Card(nil), d.cards...)
}

// Shuffle permutes the remaining cards uniformly.
func (d *Deck) Shuffle(rng Shuffler) {
	rng.Shuffle(len(d.cards), func(i, j int) { d.cards[i], d.cards[j] = d.cards[j], d.cards[i] })
}

// Deal hands out cardsEach cards to each of players seats, one card per seat per
// round in seat order, consuming the deck without replacement.
func (d *Deck) Deal(players, cardsEach int) ([][]Card, error) {
	if players <= 0 || cardsEach <= 0 {
		return nil, fmt.Errorf("invalid deal of %d cards to %d players", cardsEach, players)
	}
	need := players * cardsEach
	if need > len(d.cards) {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrDeckExhausted, need, len(d.cards))
	}
	hands := make([][]Card, players)
	for i := range hands {
		hands[i] = make([]Card, 0, cardsEach)
	}
	idx := 0
	for round := 0; round < cardsEach; round++ {
		for seat := 0; seat < players; seat++ {
			hands[seat] = append(hands[seat], d.cards[idx])
			idx++
		}
	}
	d.cards = d.cards[need:]
	return hands, nil
}
