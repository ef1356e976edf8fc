package onboarding

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/fabianaguero/truco/internal/ports"
)

const (
	minNameLength = 3
	maxNameLength = 20
)

// Result captures non-fatal onboarding outcomes.
type Result struct {
	DisplayName string
	// Generated is true when the requested name was unusable and a table name was made up.
	Generated bool
	// ProfileUpdateErr is set when the profile update failed but onboarding continued.
	ProfileUpdateErr error
	// Registered is false when the player already had a roster record.
	Registered bool
}

// Service seats new accounts in the roster so they can be invited to matches by id.
type Service struct {
	profiles ports.ProfileUpdater
	roster   ports.PlayerRegistrar
	rng      *rand.Rand
}

// NewService constructs an onboarding service.
// profiles/roster must be non-nil; rng may be nil to use a time-seeded default.
func NewService(profiles ports.ProfileUpdater, roster ports.PlayerRegistrar, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{profiles: profiles, roster: roster, rng: rng}
}

// OnboardNewUser names a new account and registers it as a roster player.
// requested is used as the table name when it is a plain word of 3 to 20
// letters or digits; otherwise a name is generated.
// Returns an error only if the roster record cannot be written.
func (s *Service) OnboardNewUser(ctx context.Context, userID, requested string) (Result, error) {
	if s.profiles == nil || s.roster == nil {
		return Result{}, fmt.Errorf("onboarding service not configured")
	}
	if userID == "" {
		return Result{}, fmt.Errorf("user id is required")
	}

	result := Result{DisplayName: cleanName(requested)}
	if result.DisplayName == "" {
		result.DisplayName = s.tableName()
		result.Generated = true
	}
	if err := s.profiles.UpdateProfile(ctx, userID, "", result.DisplayName); err != nil {
		result.ProfileUpdateErr = err
	}

	registered, err := s.roster.RegisterPlayerOnce(ctx, ports.RosterPlayer{ID: userID, Name: result.DisplayName})
	if err != nil {
		return result, fmt.Errorf("failed to register roster player: %w", err)
	}
	result.Registered = registered
	return result, nil
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if n := len([]rune(s)); n < minNameLength || n > maxNameLength {
		return ""
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ""
		}
	}
	return s
}

// tableName picks a card nickname and a payada adjective, e.g. "AnchoPicaro4821".
func (s *Service) tableName() string {
	cards := []string{"Ancho", "Siete", "Caballo", "Rey", "Sota", "Mazo", "Macho", "Hembra", "Falta", "Flor"}
	moods := []string{"Picaro", "Mentiroso", "Callado", "Guapo", "Ligero", "Manso", "Bravo", "Zorro", "Sereno", "Cantor"}

	return fmt.Sprintf("%s%s%d",
		cards[s.rng.Intn(len(cards))],
		moods[s.rng.Intn(len(moods))],
		s.rng.Intn(9000)+1000)
}
