package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const maxStorageListLimit = 100

// NakamaMatchStore implements ports.MatchStore on Nakama storage. Storage object
// versions are the match version tokens, so a conditional write is the commit.
type NakamaMatchStore struct {
	nk  runtime.NakamaModule
	now func() time.Time
}

// NewMatchStore creates a new storage-backed match store.
func NewMatchStore(nk runtime.NakamaModule) *NakamaMatchStore {
	return &NakamaMatchStore{nk: nk, now: time.Now}
}

// Create writes m only if no object exists under its id.
func (s *NakamaMatchStore) Create(ctx context.Context, m *domain.Match) (*domain.Match, error) {
	if m == nil || m.ID == "" {
		return nil, fmt.Errorf("match id is required")
	}
	stored := m.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt

	version, err := s.write(ctx, stored, "*")
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return nil, fmt.Errorf("%w: match %s", ports.ErrAlreadyExists, m.ID)
		}
		return nil, err
	}
	stored.Version = version
	return stored, nil
}

func (s *NakamaMatchStore) Load(ctx context.Context, matchID string) (*domain.Match, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: matchCollection, Key: matchID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read match %s: %w", matchID, err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: match %s", ports.ErrNotFound, matchID)
	}
	return decodeMatch(objects[0].GetValue(), objects[0].GetVersion())
}

// Save commits m with Nakama's version check. Nakama reports a stale version
// and a deleted object the same way, so both surface as ErrVersionConflict.
func (s *NakamaMatchStore) Save(ctx context.Context, m *domain.Match, expectedVersion string) (*domain.Match, error) {
	if expectedVersion == "" {
		return nil, fmt.Errorf("%w: expected version is required", ports.ErrVersionConflict)
	}
	stored := m.Clone()
	stored.UpdatedAt = s.now().UTC()

	version, err := s.write(ctx, stored, expectedVersion)
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return nil, fmt.Errorf("%w: match %s at version %s", ports.ErrVersionConflict, m.ID, expectedVersion)
		}
		return nil, err
	}
	stored.Version = version
	return stored, nil
}

// List returns up to limit matches, most recently updated first.
func (s *NakamaMatchStore) List(ctx context.Context, limit int) ([]ports.MatchSummary, error) {
	if limit <= 0 || limit > maxStorageListLimit {
		limit = maxStorageListLimit
	}
	var (
		out    []ports.MatchSummary
		cursor string
	)
	for {
		objects, next, err := s.nk.StorageList(ctx, "", uuid.Nil.String(), matchCollection, maxStorageListLimit, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to list matches: %w", err)
		}
		for _, obj := range objects {
			m, err := decodeMatch(obj.GetValue(), obj.GetVersion())
			if err != nil {
				return nil, err
			}
			out = append(out, ports.Summarize(m))
		}
		if next == "" {
			break
		}
		cursor = next
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *NakamaMatchStore) write(ctx context.Context, m *domain.Match, version string) (string, error) {
	m.Version = ""
	value, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal match %s: %w", m.ID, err)
	}
	acks, err := s.nk.StorageWrite(ctx, []*runtime.StorageWrite{
		{
			Collection:      matchCollection,
			Key:             m.ID,
			Value:           string(value),
			Version:         version,
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	})
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return "", err
		}
		return "", fmt.Errorf("failed to write match %s: %w", m.ID, err)
	}
	if len(acks) == 0 {
		return "", fmt.Errorf("failed to write match %s: no storage ack", m.ID)
	}
	return acks[0].GetVersion(), nil
}

func decodeMatch(value, version string) (*domain.Match, error) {
	var m domain.Match
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	m.Version = version
	return &m, nil
}

var (
	_ ports.MatchStore  = (*NakamaMatchStore)(nil)
	_ ports.MatchLister = (*NakamaMatchStore)(nil)
)
