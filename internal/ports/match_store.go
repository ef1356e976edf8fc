package ports

import (
	"context"
	"errors"
	"time"

	"github.com/fabianaguero/truco/internal/domain"
)

var (
	// ErrNotFound is returned by stores when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a write's expected version is stale.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists is returned when creating a record whose id is taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// MatchStore persists matches with optimistic versioning.
// Implementations return copies: callers may mutate what they receive.
type MatchStore interface {
	// Create stores a new match and returns it with its first version token.
	Create(ctx context.Context, m *domain.Match) (*domain.Match, error)

	// Load returns the latest committed match and its version token.
	// Returns ErrNotFound for unknown ids.
	Load(ctx context.Context, matchID string) (*domain.Match, error)

	// Save commits m only if the stored version still equals expectedVersion.
	// Returns ErrVersionConflict otherwise, leaving the stored match untouched.
	Save(ctx context.Context, m *domain.Match, expectedVersion string) (*domain.Match, error)
}

// MatchSummary is a compact listing entry.
type MatchSummary struct {
	ID         string       `json:"id"`
	Phase      domain.Phase `json:"phase"`
	HandNumber int          `json:"hand_number"`
	Teams      [2]string    `json:"teams"`
	Scores     [2]int       `json:"scores"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// MatchLister is implemented by stores that can enumerate matches.
type MatchLister interface {
	// List returns up to limit summaries, most recently updated first.
	List(ctx context.Context, limit int) ([]MatchSummary, error)
}

// Summarize builds a listing entry from a match.
func Summarize(m *domain.Match) MatchSummary {
	return MatchSummary{
		ID:         m.ID,
		Phase:      m.Phase,
		HandNumber: m.HandNumber,
		Teams:      [2]string{m.Teams[0].Name, m.Teams[1].Name},
		Scores:     [2]int{m.Teams[0].Score, m.Teams[1].Score},
		UpdatedAt:  m.UpdatedAt,
	}
}
