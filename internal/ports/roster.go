package ports

import "context"

// RosterPlayer is a player record managed outside of any match.
type RosterPlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RosterTeam is a named team with its member player ids.
type RosterTeam struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	PlayerIDs []string `json:"player_ids"`
}

// RosterStore resolves roster ids referenced by match creation requests.
type RosterStore interface {
	// GetPlayer returns a player by id, or ErrNotFound.
	GetPlayer(ctx context.Context, id string) (*RosterPlayer, error)

	// GetTeam returns a team by id, or ErrNotFound.
	GetTeam(ctx context.Context, id string) (*RosterTeam, error)
}

// RosterWriter is implemented by roster stores that accept edits.
type RosterWriter interface {
	PutPlayer(ctx context.Context, p RosterPlayer) error
	PutTeam(ctx context.Context, t RosterTeam) error
}

// ProfileUpdater changes the account name a player is shown with.
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, userID, username, displayName string) error
}

// PlayerRegistrar records a roster player the first time it is seen.
// It reports false when the player was already registered.
type PlayerRegistrar interface {
	RegisterPlayerOnce(ctx context.Context, p RosterPlayer) (bool, error)
}
