package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

var ErrInvalidSeatToken = errors.New("invalid seat token")

const defaultSeatTokenTTL = 12 * time.Hour

// SeatTokens issues and verifies HS256 tokens binding a player to a seat in a match.
type SeatTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSeatTokens(secret string, ttl time.Duration) *SeatTokens {
	if ttl <= 0 {
		ttl = defaultSeatTokenTTL
	}
	return &SeatTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for playerID in matchID.
func (t *SeatTokens) Issue(matchID, playerID string) (string, error) {
	if t == nil || len(t.secret) == 0 {
		return "", fmt.Errorf("seat token secret is not configured")
	}
	if matchID == "" || playerID == "" {
		return "", fmt.Errorf("match and player are required")
	}
	now := t.now()
	claims := jwt.MapClaims{
		"sub": playerID,
		"mid": matchID,
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// IssueAll signs one token per player id.
func (t *SeatTokens) IssueAll(matchID string, playerIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(playerIDs))
	for _, id := range playerIDs {
		tok, err := t.Issue(matchID, id)
		if err != nil {
			return nil, err
		}
		out[id] = tok
	}
	return out, nil
}

// Verify checks the signature and expiry and returns the bound match and player.
func (t *SeatTokens) Verify(tokenString string) (matchID, playerID string, err error) {
	if t == nil || len(t.secret) == 0 {
		return "", "", fmt.Errorf("%w: secret is not configured", ErrInvalidSeatToken)
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidSeatToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidSeatToken
	}
	matchID, _ = claims["mid"].(string)
	playerID, _ = claims["sub"].(string)
	if matchID == "" || playerID == "" {
		return "", "", fmt.Errorf("%w: missing claims", ErrInvalidSeatToken)
	}
	return matchID, playerID, nil
}
