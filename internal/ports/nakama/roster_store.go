package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fabianaguero/truco/internal/ports"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	maxTeamMembers        = 100
	groupStateJoinRequest = 3
)

// NakamaRosterStore resolves roster players from Nakama accounts and teams from
// Nakama groups. A player's own roster record, when present, overrides the
// account display name.
type NakamaRosterStore struct {
	nk runtime.NakamaModule
}

// NewRosterStore creates a new roster adapter.
func NewRosterStore(nk runtime.NakamaModule) *NakamaRosterStore {
	return &NakamaRosterStore{nk: nk}
}

type rosterRecord struct {
	Name         string `json:"name"`
	RegisteredAt string `json:"registered_at"`
}

func (s *NakamaRosterStore) GetPlayer(ctx context.Context, id string) (*ports.RosterPlayer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: player %s", ports.ErrNotFound, id)
	}

	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: rosterCollection, Key: rosterPlayerKey, UserID: id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read roster record for %s: %w", id, err)
	}
	if len(objects) > 0 {
		var rec rosterRecord
		if err := json.Unmarshal([]byte(objects[0].GetValue()), &rec); err == nil && rec.Name != "" {
			return &ports.RosterPlayer{ID: id, Name: rec.Name}, nil
		}
	}

	users, err := s.nk.UsersGetId(ctx, []string{id}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: player %s", ports.ErrNotFound, id)
	}
	name := users[0].GetDisplayName()
	if name == "" {
		name = users[0].GetUsername()
	}
	return &ports.RosterPlayer{ID: id, Name: name}, nil
}

// GetTeam maps a group to a team. Pending join requests are not members.
func (s *NakamaRosterStore) GetTeam(ctx context.Context, id string) (*ports.RosterTeam, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: team %s", ports.ErrNotFound, id)
	}
	groups, err := s.nk.GroupsGetId(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: team %s", ports.ErrNotFound, id)
	}

	members, _, err := s.nk.GroupUsersList(ctx, id, maxTeamMembers, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list members of group %s: %w", id, err)
	}
	team := &ports.RosterTeam{ID: id, Name: groups[0].GetName()}
	for _, gu := range members {
		if gu.GetState().GetValue() == groupStateJoinRequest {
			continue
		}
		team.PlayerIDs = append(team.PlayerIDs, gu.GetUser().GetId())
	}
	return team, nil
}

// RegisterPlayerOnce writes the player's roster record unless one exists.
func (s *NakamaRosterStore) RegisterPlayerOnce(ctx context.Context, p ports.RosterPlayer) (bool, error) {
	if p.ID == "" {
		return false, fmt.Errorf("userID is required")
	}
	value, err := json.Marshal(rosterRecord{Name: p.Name, RegisteredAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return false, fmt.Errorf("failed to marshal roster record: %w", err)
	}

	_, err = s.nk.StorageWrite(ctx, []*runtime.StorageWrite{
		{
			Collection:      rosterCollection,
			Key:             rosterPlayerKey,
			UserID:          p.ID,
			Value:           string(value),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	})
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("failed to register roster player: %w", err)
	}
	return true, nil
}

// UpdateProfile sets the account display name shown next to the player's seat.
// An empty username leaves the current one in place.
func (s *NakamaRosterStore) UpdateProfile(ctx context.Context, userID, username, displayName string) error {
	if err := s.nk.AccountUpdateId(ctx, userID, username, nil, displayName, "", "", "", ""); err != nil {
		return fmt.Errorf("failed to update profile of %s: %w", userID, err)
	}
	return nil
}

var (
	_ ports.RosterStore     = (*NakamaRosterStore)(nil)
	_ ports.PlayerRegistrar = (*NakamaRosterStore)(nil)
	_ ports.ProfileUpdater  = (*NakamaRosterStore)(nil)
)
