package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownSeat = errors.New("player is not seated")

// TurnOrder is the persisted seating: player ids in seat order plus the index
// of the seat whose turn it is. It is rebuilt at the start of every hand.
type TurnOrder struct {
	Seats []string `json:"seats"`
	Index int      `json:"index"`
}

// NewTurnOrder interleaves the two teams seat by seat (A0, B0, A1, B1) and
// starts the turn at seat start modulo the number of seats.
func NewTurnOrder(teamA, teamB []string, start int) (TurnOrder, error) {
	if len(teamA) == 0 || len(teamA) != len(teamB) {
		return TurnOrder{}, fmt.Errorf("teams must be non-empty and equal in size, got %d and %d", len(teamA), len(teamB))
	}
	seats := make([]string, 0, len(teamA)*2)
	for i := range teamA {
		seats = append(seats, teamA[i], teamB[i])
	}
	n := len(seats)
	return TurnOrder{Seats: seats, Index: ((start % n) + n) % n}, nil
}

// Current returns the id of the player holding the turn, or "" if no seats.
func (t TurnOrder) Current() string {
	if len(t.Seats) == 0 {
		return ""
	}
	return t.Seats[t.Index%len(t.Seats)]
}

// Advance moves the turn to the next seat, wrapping to the first.
func (t *TurnOrder) Advance() {
	if len(t.Seats) == 0 {
		return
	}
	t.Index = (t.Index + 1) % len(t.Seats)
}

// SeatOf returns the seat index of a player.
func (t TurnOrder) SeatOf(playerID string) (int, bool) {
	for i, id := range t.Seats {
		if id == playerID {
			return i, true
		}
	}
	return 0, false
}

// SetCurrent gives the turn to the given player.
func (t *TurnOrder) SetCurrent(playerID string) error {
	seat, ok := t.SeatOf(playerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSeat, playerID)
	}
	t.Index = seat
	return nil
}

// NextAfter returns the first seat after playerID, in seat order, whose player
// satisfies match. It wraps around and never returns playerID itself.
func (t TurnOrder) NextAfter(playerID string, match func(id string) bool) (string, bool) {
	seat, ok := t.SeatOf(playerID)
	if !ok {
		return "", false
	}
	n := len(t.Seats)
	for step := 1; step < n; step++ {
		id := t.Seats[(seat+step)%n]
		if match(id) {
			return id, true
		}
	}
	return "", false
}
