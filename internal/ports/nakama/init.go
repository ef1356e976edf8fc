package nakama

import (
	"context"
	"database/sql"
	"strings"

	"github.com/fabianaguero/truco/internal/app"
	"github.com/fabianaguero/truco/internal/config"
	"github.com/fabianaguero/truco/internal/rules"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const defaultConfigPath = "data/game_config.json"

// InitModule wires RPCs, the realtime table handler and hooks for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)

	path := env[envConfigPath]
	if path == "" {
		path = defaultConfigPath
	}
	if err := config.LoadGameConfig(path); err != nil {
		logger.Warn("InitModule: Could not load game config, using defaults: %v", err)
	}
	cfg := config.GetGameConfig()

	zl := NewZapLogger(logger)
	engine := cfg.GetRulesEngine()
	if v := env[envRulesEngine]; v != "" {
		engine = v
	}
	src, err := rules.Open(engine, cfg.GetRulesDir(), zl)
	if err != nil {
		logger.Error("InitModule: Rule set %q unavailable, every action will be denied until truco_reload_rules succeeds: %v", engine, err)
	}

	secret := env[envSeatSecret]
	if secret == "" {
		// Tokens then only survive until the next restart.
		secret = uuid.NewString()
		logger.Warn("InitModule: %s is not set, using an ephemeral seat token secret.", envSeatSecret)
	}
	tokens := app.NewSeatTokens(secret, cfg.GetSeatTokenTTL())

	svc := app.NewService(NewMatchStore(nk), NewRosterStore(nk), src, nil,
		app.WithLogger(zl),
		app.WithScoreLimit(cfg.GetScoreLimit()))

	handlers := &Handlers{
		Service:   svc,
		Tokens:    tokens,
		Rules:     src,
		Notifier:  NewTableNotifier(nk, logger),
		Admins:    parseAdmins(env[envAdminUsers]),
		ListLimit: cfg.GetListLimit(),
	}
	if err := RegisterRPCs(initializer, handlers); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameTruco, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return newTableHandler(svc, tokens), nil
	}); err != nil {
		return err
	}

	if err := initializer.RegisterAfterAuthenticateDevice(newAfterAuthenticateDevice(defaultOnboarding)); err != nil {
		return err
	}

	logger.Info("Truco Go module loaded (rules=%s, score_limit=%d).", engine, cfg.GetScoreLimit())
	return nil
}

func parseAdmins(v string) map[string]bool {
	out := map[string]bool{}
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}
