// Package httpapi exposes the match service over HTTP with echo.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fabianaguero/truco/internal/app"
	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
	"github.com/fabianaguero/truco/internal/rules"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	HeaderSeatToken  = "X-Seat-Token"
	HeaderAdminToken = "X-Admin-Token"
)

// Watcher upgrades a request into a live feed of one match.
type Watcher interface {
	ServeWS(w http.ResponseWriter, r *http.Request, matchID string)
}

// Handler serves the match API.
type Handler struct {
	Service    *app.Service
	Tokens     *app.SeatTokens
	Rules      *rules.Source
	Notifier   ports.Notifier
	Watcher    Watcher
	AdminToken string
	ListLimit  int
	Logger     *zap.Logger
}

// CreateMatchResponse carries the public state and one seat token per player.
type CreateMatchResponse struct {
	State      *app.State        `json:"state"`
	SeatTokens map[string]string `json:"seat_tokens"`
}

// ActionResponse is returned by every action endpoint.
type ActionResponse struct {
	State *app.State           `json:"state"`
	Legal domain.PermissionSet `json:"legal"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type actionRequest struct {
	SeatToken string `json:"seat_token,omitempty"`
	Call      string `json:"call,omitempty"`
	CardIndex int    `json:"card_index,omitempty"`
}

// NewEcho returns an echo instance with every route registered.
func NewEcho(h *Handler) *echo.Echo {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				h.Logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			h.Logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	h.Register(e)
	return e
}

func (h *Handler) Register(e *echo.Echo) {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	api := e.Group("/api")
	api.POST("/matches", h.createMatch)
	api.GET("/matches", h.listMatches)
	api.GET("/matches/:id", h.getState)
	api.GET("/matches/:id/view", h.playerView)
	api.POST("/matches/:id/bid", h.callBid)
	api.POST("/matches/:id/play", h.playCard)
	api.POST("/matches/:id/accept", h.accept)
	api.POST("/matches/:id/reject", h.reject)
	api.POST("/matches/:id/fold", h.fold)
	api.POST("/rules/reload", h.reloadRules)

	if h.Watcher != nil {
		e.GET("/ws/matches/:id", func(c echo.Context) error {
			h.Watcher.ServeWS(c.Response(), c.Request(), c.Param("id"))
			return nil
		})
	}
}

func (h *Handler) createMatch(c echo.Context) error {
	var spec app.RosterSpec
	if err := c.Bind(&spec); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	ctx := c.Request().Context()
	st, events, err := h.Service.CreateMatch(ctx, spec)
	if err != nil {
		h.Logger.Warn("create match failed", zap.Error(err))
		return h.fail(c, err)
	}
	tokens, err := h.Tokens.IssueAll(st.Match.ID, st.Match.PlayerIDs())
	if err != nil {
		h.Logger.Error("issue seat tokens", zap.String("match_id", st.Match.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "seat tokens unavailable"})
	}
	h.publish(c, st.Match.ID, events)
	h.Logger.Info("match created", zap.String("match_id", st.Match.ID))
	return c.JSON(http.StatusCreated, CreateMatchResponse{State: st.Public(), SeatTokens: tokens})
}

func (h *Handler) listMatches(c echo.Context) error {
	limit := h.ListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		}
		if n < limit {
			limit = n
		}
	}
	list, err := h.Service.ListMatches(c.Request().Context(), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"matches": list})
}

func (h *Handler) getState(c echo.Context) error {
	st, err := h.Service.GetState(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, st.Public())
}

func (h *Handler) playerView(c echo.Context) error {
	matchID := c.Param("id")
	playerID, err := h.seat(matchID, c.Request().Header.Get(HeaderSeatToken))
	if err != nil {
		return h.fail(c, err)
	}
	view, err := h.Service.PlayerView(c.Request().Context(), matchID, playerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) callBid(c echo.Context) error {
	return h.act(c, "call_bid", func(matchID, playerID string, req actionRequest) (*app.State, []app.Event, error) {
		call, err := domain.ParseCall(req.Call)
		if err != nil {
			return nil, nil, err
		}
		return h.Service.CallBid(c.Request().Context(), matchID, playerID, call)
	})
}

func (h *Handler) playCard(c echo.Context) error {
	return h.act(c, "play_card", func(matchID, playerID string, req actionRequest) (*app.State, []app.Event, error) {
		return h.Service.PlayCard(c.Request().Context(), matchID, playerID, req.CardIndex)
	})
}

func (h *Handler) accept(c echo.Context) error {
	return h.act(c, "accept", func(matchID, playerID string, req actionRequest) (*app.State, []app.Event, error) {
		return h.Service.Accept(c.Request().Context(), matchID, playerID)
	})
}

func (h *Handler) reject(c echo.Context) error {
	return h.act(c, "reject", func(matchID, playerID string, req actionRequest) (*app.State, []app.Event, error) {
		return h.Service.Reject(c.Request().Context(), matchID, playerID)
	})
}

func (h *Handler) fold(c echo.Context) error {
	return h.act(c, "fold", func(matchID, playerID string, req actionRequest) (*app.State, []app.Event, error) {
		return h.Service.Fold(c.Request().Context(), matchID, playerID)
	})
}

func (h *Handler) reloadRules(c echo.Context) error {
	if h.AdminToken == "" || c.Request().Header.Get(HeaderAdminToken) != h.AdminToken {
		return c.JSON(http.StatusForbidden, errorResponse{Error: "admin only"})
	}
	if err := h.Rules.Reload(); err != nil {
		h.Logger.Error("rule reload failed, keeping current rules", zap.Error(err))
		return h.fail(c, err)
	}
	name := h.Rules.Current().Name()
	h.Logger.Info("rule set reloaded", zap.String("ruleset", name))
	return c.JSON(http.StatusOK, map[string]string{"ruleset": name})
}

// act runs one action for the seat named by the request's token and
// publishes the resulting events.
func (h *Handler) act(c echo.Context, op string, do func(matchID, playerID string, req actionRequest) (*app.State, []app.Event, error)) error {
	matchID := c.Param("id")
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	token := c.Request().Header.Get(HeaderSeatToken)
	if token == "" {
		token = req.SeatToken
	}
	playerID, err := h.seat(matchID, token)
	if err != nil {
		return h.fail(c, err)
	}

	st, events, err := do(matchID, playerID, req)
	if err != nil {
		h.Logger.Debug("action refused", zap.String("op", op), zap.String("match_id", matchID),
			zap.String("player_id", playerID), zap.Error(err))
		return h.fail(c, err)
	}
	h.publish(c, matchID, events)
	return c.JSON(http.StatusOK, ActionResponse{State: st.Public(), Legal: st.Legal[playerID]})
}

func (h *Handler) seat(matchID, token string) (string, error) {
	if token == "" {
		return "", errMissingSeatToken
	}
	mid, playerID, err := h.Tokens.Verify(token)
	if err != nil {
		return "", err
	}
	if mid != matchID {
		return "", app.ErrInvalidSeatToken
	}
	return playerID, nil
}

func (h *Handler) publish(c echo.Context, matchID string, events []app.Event) {
	ports.PublishAll(c.Request().Context(), h.Notifier, matchID, app.Notifications(matchID, events))
}

var errMissingSeatToken = errors.New("seat token required")

// StatusCode maps service errors to HTTP statuses.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, app.ErrValidation), errors.Is(err, domain.ErrUnknownCall):
		return http.StatusBadRequest
	case errors.Is(err, errMissingSeatToken):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrInvalidSeatToken):
		return http.StatusForbidden
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrIllegalAction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, app.ErrRulesetUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(status, errorResponse{Error: "internal error"})
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}
