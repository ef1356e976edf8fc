package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
	"github.com/fabianaguero/truco/internal/rules"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service contains Truco use-cases operating on stored matches. Every mutation
// loads a match, applies one transition to a private copy and commits it only
// if the stored version has not moved; otherwise ErrConcurrencyConflict is
// returned and the caller must re-read and retry.
type Service struct {
	matches    ports.MatchStore
	rosters    ports.RosterStore
	machine    *Machine
	logger     *zap.Logger
	newID      func() string
	now        func() time.Time
	scoreLimit int
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScoreLimit sets the default score that wins a match.
func WithScoreLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.scoreLimit = limit
		}
	}
}

// WithIDGenerator replaces uuid-based ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service with provided rng or a time-seeded default.
func NewService(matches ports.MatchStore, rosters ports.RosterStore, src *rules.Source, rng *rand.Rand, opts ...Option) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Service{
		matches:    matches,
		rosters:    rosters,
		logger:     zap.NewNop(),
		newID:      func() string { return uuid.NewString() },
		now:        time.Now,
		scoreLimit: domain.DefaultScoreLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if src == nil {
		src = rules.NewSource(nil, s.logger)
	}
	s.machine = NewMachine(src, rng)
	return s
}

// CreateMatch snapshots the roster into a new match and deals the first hand.
func (s *Service) CreateMatch(ctx context.Context, spec RosterSpec) (*State, []Event, error) {
	teams, err := s.resolveRoster(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	limit := s.scoreLimit
	if spec.ScoreLimit > 0 {
		limit = spec.ScoreLimit
	}
	m := &domain.Match{
		ID:         s.newID(),
		Teams:      teams,
		ScoreLimit: limit,
		CreatedAt:  s.now().UTC(),
	}
	events, err := s.machine.StartMatch(m)
	if err != nil {
		return nil, nil, err
	}
	created, err := s.matches.Create(ctx, m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store match: %w", err)
	}
	s.logger.Info("match created",
		zap.String("match_id", created.ID),
		zap.Strings("players", created.PlayerIDs()),
		zap.Int("score_limit", created.ScoreLimit))
	return s.state(created), events, nil
}

// GetState returns the latest snapshot with every player's legal actions.
func (s *Service) GetState(ctx context.Context, matchID string) (*State, error) {
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return s.state(m), nil
}

// PlayerView returns what playerID may see of the match.
func (s *Service) PlayerView(ctx context.Context, matchID, playerID string) (*PlayerView, error) {
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	p, team, ok := m.Player(playerID)
	if !ok {
		return nil, errNotInMatch(matchID, playerID)
	}
	return newPlayerView(m, p, team, s.machine.legalFor(m, p)), nil
}

// ListMatches returns recent matches when the store supports listing.
func (s *Service) ListMatches(ctx context.Context, limit int) ([]ports.MatchSummary, error) {
	lister, ok := s.matches.(ports.MatchLister)
	if !ok {
		return nil, errors.New("match store cannot list matches")
	}
	return lister.List(ctx, limit)
}

// CallBid sings call on behalf of playerID.
func (s *Service) CallBid(ctx context.Context, matchID, playerID string, call domain.Call) (*State, []Event, error) {
	return s.mutate(ctx, "call_bid", matchID, playerID, func(m *domain.Match) ([]Event, error) {
		return s.machine.CallBid(m, playerID, call)
	})
}

// PlayCard plays the card at cardIndex of playerID's hand.
func (s *Service) PlayCard(ctx context.Context, matchID, playerID string, cardIndex int) (*State, []Event, error) {
	return s.mutate(ctx, "play_card", matchID, playerID, func(m *domain.Match) ([]Event, error) {
		return s.machine.PlayCard(m, playerID, cardIndex)
	})
}

// Accept answers the pending call with an accept.
func (s *Service) Accept(ctx context.Context, matchID, playerID string) (*State, []Event, error) {
	return s.mutate(ctx, "accept", matchID, playerID, func(m *domain.Match) ([]Event, error) {
		return s.machine.Accept(m, playerID)
	})
}

// Reject answers the pending call with a reject.
func (s *Service) Reject(ctx context.Context, matchID, playerID string) (*State, []Event, error) {
	return s.mutate(ctx, "reject", matchID, playerID, func(m *domain.Match) ([]Event, error) {
		return s.machine.Reject(m, playerID)
	})
}

// Fold concedes the current hand.
func (s *Service) Fold(ctx context.Context, matchID, playerID string) (*State, []Event, error) {
	return s.mutate(ctx, "fold", matchID, playerID, func(m *domain.Match) ([]Event, error) {
		return s.machine.Fold(m, playerID)
	})
}

func (s *Service) mutate(ctx context.Context, op, matchID, playerID string, apply func(m *domain.Match) ([]Event, error)) (*State, []Event, error) {
	current, err := s.load(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if _, _, ok := current.Player(playerID); !ok {
		return nil, nil, errNotInMatch(matchID, playerID)
	}

	work := current.Clone()
	events, err := apply(work)
	if err != nil {
		s.logger.Debug("action refused",
			zap.String("op", op), zap.String("match_id", matchID),
			zap.String("player_id", playerID), zap.Error(err))
		return nil, nil, err
	}

	saved, err := s.matches.Save(ctx, work, current.Version)
	if err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			s.logger.Info("concurrent update rejected",
				zap.String("op", op), zap.String("match_id", matchID), zap.String("version", current.Version))
			return nil, nil, fmt.Errorf("%w: match %s changed since version %s", ErrConcurrencyConflict, matchID, current.Version)
		}
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
		}
		return nil, nil, fmt.Errorf("failed to save match %s: %w", matchID, err)
	}
	if saved.Finished() && !current.Finished() {
		s.logger.Info("match finished",
			zap.String("match_id", matchID), zap.Intp("winner", saved.Winner),
			zap.Int("score_a", saved.Teams[0].Score), zap.Int("score_b", saved.Teams[1].Score))
	}
	return s.state(saved), events, nil
}

func (s *Service) load(ctx context.Context, matchID string) (*domain.Match, error) {
	m, err := s.matches.Load(ctx, matchID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
		}
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	return m, nil
}

func (s *Service) state(m *domain.Match) *State {
	return &State{Match: m, Legal: s.machine.LegalActions(m)}
}
