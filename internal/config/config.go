package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
)

const (
	RulesEngineLua     = "lua"
	RulesEngineBuiltin = "builtin"

	defaultScoreLimit     = 30
	defaultSeatTokenTTL   = 12 * time.Hour
	defaultHistoryLimit   = 50
	defaultTableTickRate  = 1
	defaultTableIdleTicks = 600
)

type GameConfig struct {
	// ScoreLimit is the score a team needs to win a match (15 or 30 in practice).
	ScoreLimit int `json:"score_limit"`
	// RulesEngine selects the rule set: "lua" for scripted rules, "builtin" for the compiled ones.
	RulesEngine string `json:"rules_engine"`
	// RulesDir overrides the embedded Lua scripts with the *.lua files of a directory.
	RulesDir            string `json:"rules_dir"`
	SeatTokenTTLSeconds int    `json:"seat_token_ttl_seconds"`
	ListLimit           int    `json:"list_limit"`
	TableTickRate       int    `json:"table_tick_rate"`
	// TableIdleTicks terminates a realtime table after this many ticks without presences.
	TableIdleTicks int `json:"table_idle_ticks"`
}

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadGameConfig loads the game configuration from the given path.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		c, err := ReadGameConfig(path)
		if err != nil {
			loadErr = err
			return
		}
		cfg = c
	})
	return loadErr
}

// ReadGameConfig parses a config file without touching the global configuration.
func ReadGameConfig(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game config: %w", err)
	}

	var c GameConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values that can never work and reports all of them at once.
// Zero values are fine and fall back to defaults.
func (c *GameConfig) Validate() error {
	var err error
	if c.ScoreLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("score_limit %d is negative", c.ScoreLimit))
	}
	switch c.RulesEngine {
	case "", RulesEngineLua, RulesEngineBuiltin:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown rules_engine %q", c.RulesEngine))
	}
	for name, v := range map[string]int{
		"seat_token_ttl_seconds": c.SeatTokenTTLSeconds,
		"list_limit":             c.ListLimit,
		"table_tick_rate":        c.TableTickRate,
		"table_idle_ticks":       c.TableIdleTicks,
	} {
		if v < 0 {
			err = multierr.Append(err, fmt.Errorf("%s %d is negative", name, v))
		}
	}
	if err != nil {
		return fmt.Errorf("invalid game config: %w", err)
	}
	return nil
}

// GetGameConfig returns the global game configuration.
func GetGameConfig() *GameConfig {
	return cfg
}

// GetScoreLimit returns the configured score limit, or 30 if unset.
func (c *GameConfig) GetScoreLimit() int {
	if c == nil || c.ScoreLimit <= 0 {
		return defaultScoreLimit
	}
	return c.ScoreLimit
}

func (c *GameConfig) GetRulesEngine() string {
	if c == nil || c.RulesEngine == "" {
		return RulesEngineLua
	}
	return c.RulesEngine
}

func (c *GameConfig) GetRulesDir() string {
	if c == nil {
		return ""
	}
	return c.RulesDir
}

func (c *GameConfig) GetSeatTokenTTL() time.Duration {
	if c == nil || c.SeatTokenTTLSeconds <= 0 {
		return defaultSeatTokenTTL
	}
	return time.Duration(c.SeatTokenTTLSeconds) * time.Second
}

func (c *GameConfig) GetListLimit() int {
	if c == nil || c.ListLimit <= 0 {
		return defaultHistoryLimit
	}
	return c.ListLimit
}

func (c *GameConfig) GetTableTickRate() int {
	if c == nil || c.TableTickRate <= 0 {
		return defaultTableTickRate
	}
	return c.TableTickRate
}

func (c *GameConfig) GetTableIdleTicks() int64 {
	if c == nil || c.TableIdleTicks <= 0 {
		return defaultTableIdleTicks
	}
	return int64(c.TableIdleTicks)
}
