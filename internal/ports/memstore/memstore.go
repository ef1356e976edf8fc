// Package memstore keeps matches and roster records in process memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
)

// MatchStore is an in-memory ports.MatchStore. Versions are decimal counters.
type MatchStore struct {
	mu      sync.RWMutex
	matches map[string]*domain.Match
	now     func() time.Time
}

// NewMatchStore returns an empty store.
func NewMatchStore() *MatchStore {
	return &MatchStore{matches: map[string]*domain.Match{}, now: time.Now}
}

func (s *MatchStore) Create(ctx context.Context, m *domain.Match) (*domain.Match, error) {
	if m == nil || m.ID == "" {
		return nil, fmt.Errorf("match id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; ok {
		return nil, fmt.Errorf("%w: match %s", ports.ErrAlreadyExists, m.ID)
	}
	stored := m.Clone()
	stored.Version = "1"
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.matches[m.ID] = stored
	return stored.Clone(), nil
}

func (s *MatchStore) Load(ctx context.Context, matchID string) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: match %s", ports.ErrNotFound, matchID)
	}
	return m.Clone(), nil
}

func (s *MatchStore) Save(ctx context.Context, m *domain.Match, expectedVersion string) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.matches[m.ID]
	if !ok {
		return nil, fmt.Errorf("%w: match %s", ports.ErrNotFound, m.ID)
	}
	if cur.Version != expectedVersion {
		return nil, fmt.Errorf("%w: match %s at version %s, expected %s", ports.ErrVersionConflict, m.ID, cur.Version, expectedVersion)
	}
	n, _ := strconv.Atoi(cur.Version)
	stored := m.Clone()
	stored.Version = strconv.Itoa(n + 1)
	stored.CreatedAt = cur.CreatedAt
	stored.UpdatedAt = s.now().UTC()
	s.matches[m.ID] = stored
	return stored.Clone(), nil
}

// List returns summaries ordered by most recent update.
func (s *MatchStore) List(ctx context.Context, limit int) ([]ports.MatchSummary, error) {
	s.mu.RLock()
	out := make([]ports.MatchSummary, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, ports.Summarize(m))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RosterStore is an in-memory ports.RosterStore.
type RosterStore struct {
	mu      sync.RWMutex
	players map[string]ports.RosterPlayer
	teams   map[string]ports.RosterTeam
}

// NewRosterStore returns an empty roster.
func NewRosterStore() *RosterStore {
	return &RosterStore{players: map[string]ports.RosterPlayer{}, teams: map[string]ports.RosterTeam{}}
}

func (r *RosterStore) GetPlayer(ctx context.Context, id string) (*ports.RosterPlayer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: player %s", ports.ErrNotFound, id)
	}
	return &p, nil
}

func (r *RosterStore) GetTeam(ctx context.Context, id string) (*ports.RosterTeam, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: team %s", ports.ErrNotFound, id)
	}
	t.PlayerIDs = append([]string(nil), t.PlayerIDs...)
	return &t, nil
}

func (r *RosterStore) PutPlayer(ctx context.Context, p ports.RosterPlayer) error {
	if p.ID == "" {
		return fmt.Errorf("player id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[p.ID] = p
	return nil
}

func (r *RosterStore) PutTeam(ctx context.Context, t ports.RosterTeam) error {
	if t.ID == "" {
		return fmt.Errorf("team id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.PlayerIDs = append([]string(nil), t.PlayerIDs...)
	r.teams[t.ID] = t
	return nil
}

var (
	_ ports.MatchStore   = (*MatchStore)(nil)
	_ ports.MatchLister  = (*MatchStore)(nil)
	_ ports.RosterStore  = (*RosterStore)(nil)
	_ ports.RosterWriter = (*RosterStore)(nil)
)
