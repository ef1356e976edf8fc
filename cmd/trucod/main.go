// Command trucod serves truco matches over HTTP and websockets with an
// in-memory store, without a Nakama server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fabianaguero/truco/internal/app"
	"github.com/fabianaguero/truco/internal/config"
	"github.com/fabianaguero/truco/internal/ports"
	"github.com/fabianaguero/truco/internal/ports/httpapi"
	"github.com/fabianaguero/truco/internal/ports/memstore"
	"github.com/fabianaguero/truco/internal/ports/ws"
	"github.com/fabianaguero/truco/internal/rules"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := config.LoadGameConfig(getenv("TRUCO_CONFIG", "data/game_config.json")); err != nil {
		logger.Warn("could not load game config, using defaults", zap.Error(err))
	}
	cfg := config.GetGameConfig()

	engine := getenv("TRUCO_RULES_ENGINE", cfg.GetRulesEngine())
	src, err := rules.Open(engine, getenv("TRUCO_RULES_DIR", cfg.GetRulesDir()), logger)
	if err != nil {
		logger.Error("rule set unavailable, actions are denied until a reload succeeds",
			zap.String("engine", engine), zap.Error(err))
	}

	secret := os.Getenv("TRUCO_SEAT_SECRET")
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("TRUCO_SEAT_SECRET is not set, seat tokens will not survive a restart")
	}
	tokens := app.NewSeatTokens(secret, cfg.GetSeatTokenTTL())

	svc := app.NewService(memstore.NewMatchStore(), memstore.NewRosterStore(), src, nil,
		app.WithLogger(logger),
		app.WithScoreLimit(cfg.GetScoreLimit()))

	hub := ws.NewHub(svc, tokens, strings.Split(os.Getenv("TRUCO_ALLOWED_ORIGINS"), ","), logger.Named("ws"))
	e := httpapi.NewEcho(&httpapi.Handler{
		Service:    svc,
		Tokens:     tokens,
		Rules:      src,
		Notifier:   ports.Fanout{hub},
		Watcher:    hub,
		AdminToken: os.Getenv("TRUCO_ADMIN_TOKEN"),
		ListLimit:  cfg.GetListLimit(),
		Logger:     logger.Named("http"),
	})

	// SIGHUP reloads the rule set; a failed reload keeps the current one.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := src.Reload(); err != nil {
				logger.Error("rule reload failed", zap.Error(err))
				continue
			}
			logger.Info("rule set reloaded", zap.String("ruleset", src.Current().Name()))
		}
	}()

	addr := getenv("TRUCO_HTTP_ADDR", ":8080")
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("rules", engine))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdown); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
