package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCall = errors.New("unknown call")

// BidFamily groups escalating calls that share a level ladder.
type BidFamily string

const (
	FamilyTruco  BidFamily = "truco"
	FamilyEnvido BidFamily = "envido"
	FamilyFlor   BidFamily = "flor"
)

// Families lists the bid families in a stable order.
var Families = []BidFamily{FamilyTruco, FamilyEnvido, FamilyFlor}

// BidLevel is the position of a call on its family's ladder. Zero means nothing was called.
type BidLevel int

const LevelNone BidLevel = 0

// Call is a verbal bid a player can sing.
type Call string

const (
	CallTruco             Call = "truco"
	CallRetruco           Call = "retruco"
	CallValeCuatro        Call = "vale_cuatro"
	CallEnvido            Call = "envido"
	CallRealEnvido        Call = "real_envido"
	CallFaltaEnvido       Call = "falta_envido"
	CallFlor              Call = "flor"
	CallContraflor        Call = "contraflor"
	CallContraflorAlResto Call = "contraflor_al_resto"
)

var callLadder = map[BidFamily][]Call{
	FamilyTruco:  {CallTruco, CallRetruco, CallValeCuatro},
	FamilyEnvido: {CallEnvido, CallRealEnvido, CallFaltaEnvido},
	FamilyFlor:   {CallFlor, CallContraflor, CallContraflorAlResto},
}

// Points a family is worth when nothing was accepted yet. A rejected first
// call earns its caller this much.
var baseStake = map[BidFamily]int{
	FamilyTruco:  1,
	FamilyEnvido: 1,
	FamilyFlor:   3,
}

// ParseCall accepts call names such as "vale cuatro" or "REAL_ENVIDO".
func ParseCall(s string) (Call, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	c := Call(norm)
	if c.Family() == "" {
		return "", fmt.Errorf("%w %q", ErrUnknownCall, s)
	}
	return c, nil
}

// Family returns the call's family, or "" for unknown calls.
func (c Call) Family() BidFamily {
	for fam, ladder := range callLadder {
		for _, lc := range ladder {
			if lc == c {
				return fam
			}
		}
	}
	return ""
}

// Level returns the call's position on its ladder, starting at 1.
func (c Call) Level() BidLevel {
	for _, ladder := range callLadder {
		for i, lc := range ladder {
			if lc == c {
				return BidLevel(i + 1)
			}
		}
	}
	return LevelNone
}

// CallAt returns the call at a level of a family.
func CallAt(f BidFamily, l BidLevel) (Call, bool) {
	ladder := callLadder[f]
	if l < 1 || int(l) > len(ladder) {
		return "", false
	}
	return ladder[l-1], true
}

// Bid tracks one family's state within a hand.
type Bid struct {
	Level      BidLevel `json:"level"`
	Call       Call     `json:"call,omitempty"`
	Pending    bool     `json:"pending"`
	Accepted   bool     `json:"accepted"`
	CalledBy   string   `json:"called_by,omitempty"`
	CallerTeam int      `json:"caller_team"`
	// Stake is awarded to the calling team if the call is rejected.
	Stake int `json:"stake"`
	// Value is what the call is worth once accepted.
	Value int `json:"value"`
	// ResumeSeat is the player whose turn was interrupted by the call.
	ResumeSeat string `json:"resume_seat,omitempty"`
}

// BaseStake returns the points a family is worth before any call was accepted.
func BaseStake(f BidFamily) int {
	return baseStake[f]
}

// CallValue is what a call is worth if accepted. Falta envido and contraflor al
// resto are worth the points the leading team lacks to reach the limit.
func CallValue(c Call, m *Match) int {
	switch c {
	case CallTruco:
		return 2
	case CallRetruco:
		return 3
	case CallValeCuatro:
		return 4
	case CallEnvido:
		return 2
	case CallRealEnvido:
		return 5
	case CallFlor:
		return 3
	case CallContraflor:
		return 6
	case CallFaltaEnvido, CallContraflorAlResto:
		return m.PointsToLimit()
	}
	return 0
}

// CallStake is what the caller earns if c is rejected: the worth of the
// previous level of the family, or the family base for a first call.
func CallStake(c Call, m *Match) int {
	prev, ok := CallAt(c.Family(), c.Level()-1)
	if !ok {
		return BaseStake(c.Family())
	}
	return CallValue(prev, m)
}
