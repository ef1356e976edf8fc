package app

import (
	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
)

// EventKind identifies emitted domain events for dispatch to observers.
type EventKind string

const (
	EventMatchCreated  EventKind = "match_created"
	EventHandStarted   EventKind = "hand_started"
	EventHandDealt     EventKind = "hand_dealt"
	EventCardPlayed    EventKind = "card_played"
	EventTrickResolved EventKind = "trick_resolved"
	EventBidCalled     EventKind = "bid_called"
	EventBidAccepted   EventKind = "bid_accepted"
	EventBidRejected   EventKind = "bid_rejected"
	EventPointsAwarded EventKind = "points_awarded"
	EventHandFolded    EventKind = "hand_folded"
	EventHandResolved  EventKind = "hand_resolved"
	EventMatchFinished EventKind = "match_finished"
)

// Event is a domain/app event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // player IDs; empty means broadcast
}

type MatchCreatedPayload struct {
	MatchID    string    `json:"match_id"`
	Teams      [2]string `json:"teams"`
	ScoreLimit int       `json:"score_limit"`
}

type HandStartedPayload struct {
	Hand  int      `json:"hand"`
	Mano  string   `json:"mano"`
	Seats []string `json:"seats"`
}

type HandDealtPayload struct {
	PlayerID string        `json:"player_id"`
	Hand     []domain.Card `json:"hand"`
}

type CardPlayedPayload struct {
	PlayerID       string      `json:"player_id"`
	Card           domain.Card `json:"card"`
	Hand           int         `json:"hand"`
	Trick          int         `json:"trick"`
	NextTurnPlayer string      `json:"next_turn_player"`
}

type TrickResolvedPayload struct {
	Hand       int    `json:"hand"`
	Trick      int    `json:"trick"`
	WinnerID   string `json:"winner_id"`
	WinnerTeam int    `json:"winner_team"`
}

type BidCalledPayload struct {
	PlayerID  string           `json:"player_id"`
	Call      domain.Call      `json:"call"`
	Family    domain.BidFamily `json:"family"`
	Stake     int              `json:"stake"`
	Value     int              `json:"value"`
	Responder string           `json:"responder"`
}

type BidAnsweredPayload struct {
	PlayerID string           `json:"player_id"`
	Call     domain.Call      `json:"call"`
	Family   domain.BidFamily `json:"family"`
}

type PointsAwardedPayload struct {
	Team   int    `json:"team"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
	Scores [2]int `json:"scores"`
}

type HandFoldedPayload struct {
	PlayerID string `json:"player_id"`
	Team     int    `json:"team"`
}

type HandResolvedPayload struct {
	Hand       int                `json:"hand"`
	WinnerTeam int                `json:"winner_team"`
	Points     int                `json:"points"`
	Outcome    domain.HandOutcome `json:"outcome"`
	Scores     [2]int             `json:"scores"`
}

type MatchFinishedPayload struct {
	WinnerTeam int    `json:"winner_team"`
	Scores     [2]int `json:"scores"`
}

// Notifications converts events into observer notifications for a match.
func Notifications(matchID string, events []Event) []ports.Notification {
	out := make([]ports.Notification, 0, len(events))
	for _, ev := range events {
		out = append(out, ports.Notification{
			Type:       string(ev.Kind),
			Payload:    ev.Payload,
			MatchID:    matchID,
			Recipients: ev.Recipients,
		})
	}
	return out
}

func scores(m *domain.Match) [2]int {
	return [2]int{m.Teams[0].Score, m.Teams[1].Score}
}
