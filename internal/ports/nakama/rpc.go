package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/fabianaguero/truco/internal/app"
	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
	"github.com/fabianaguero/truco/internal/rules"

	"github.com/heroiclabs/nakama-common/runtime"
)

// gRPC status codes understood by Nakama clients.
const (
	codeInvalidArgument    = 3
	codeNotFound           = 5
	codePermissionDenied   = 7
	codeFailedPrecondition = 9
	codeAborted            = 10
	codeInternal           = 13
	codeUnavailable        = 14
	codeUnauthenticated    = 16
)

type rpcFunc = func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)

// Handlers holds the dependencies shared by the truco RPCs.
type Handlers struct {
	Service   *app.Service
	Tokens    *app.SeatTokens
	Rules     *rules.Source
	Notifier  ports.Notifier
	Admins    map[string]bool
	ListLimit int
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer, h *Handlers) error {
	rpcs := map[string]rpcFunc{
		RpcCreateMatch: h.rpcCreateMatch,
		RpcGetState:    h.rpcGetState,
		RpcPlayerView:  h.rpcPlayerView,
		RpcListMatches: h.rpcListMatches,
		RpcCallBid:     h.rpcCallBid,
		RpcPlayCard:    h.rpcPlayCard,
		RpcAccept:      h.rpcAccept,
		RpcReject:      h.rpcReject,
		RpcFold:        h.rpcFold,
		RpcReloadRules: h.rpcReloadRules,
	}
	for id, fn := range rpcs {
		if err := initializer.RegisterRpc(id, fn); err != nil {
			return err
		}
	}
	return nil
}

type matchRequest struct {
	MatchID   string `json:"match_id"`
	SeatToken string `json:"seat_token,omitempty"`
}

type actionRequest struct {
	MatchID   string `json:"match_id"`
	SeatToken string `json:"seat_token,omitempty"`
	Call      string `json:"call,omitempty"`
	CardIndex int    `json:"card_index,omitempty"`
}

// CreateMatchResponse is returned by truco_create_match. Seat tokens are
// returned only here; clients hand them to their players.
type CreateMatchResponse struct {
	State      *app.State        `json:"state"`
	SeatTokens map[string]string `json:"seat_tokens"`
	TableID    string            `json:"table_id,omitempty"`
}

// ActionResponse is returned by every action RPC.
type ActionResponse struct {
	State *app.State           `json:"state"`
	Legal domain.PermissionSet `json:"legal"`
}

func (h *Handlers) rpcCreateMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var spec app.RosterSpec
	if err := json.Unmarshal([]byte(payload), &spec); err != nil {
		return "", runtime.NewError("invalid payload", codeInvalidArgument)
	}

	st, _, err := h.Service.CreateMatch(ctx, spec)
	if err != nil {
		logger.Warn("RpcCreateMatch [User:%s]: Failed to create match: %v", userID, err)
		return "", toRuntimeError(err)
	}
	tokens, err := h.Tokens.IssueAll(st.Match.ID, st.Match.PlayerIDs())
	if err != nil {
		logger.Error("RpcCreateMatch [User:%s]: Failed to issue seat tokens: %v", userID, err)
		return "", runtime.NewError("seat tokens unavailable", codeInternal)
	}

	resp := CreateMatchResponse{State: st.Public(), SeatTokens: tokens}
	tableID, err := nk.MatchCreate(ctx, MatchNameTruco, map[string]interface{}{MatchLabelKey_MatchID: st.Match.ID})
	if err != nil {
		logger.Warn("RpcCreateMatch [User:%s]: Match %s has no realtime table: %v", userID, st.Match.ID, err)
	} else {
		resp.TableID = tableID
	}

	logger.Info("RpcCreateMatch [User:%s]: Created match %s", userID, st.Match.ID)
	return marshal(resp)
}

func (h *Handlers) rpcGetState(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req matchRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.MatchID == "" {
		return "", runtime.NewError("match_id is required", codeInvalidArgument)
	}
	st, err := h.Service.GetState(ctx, req.MatchID)
	if err != nil {
		return "", toRuntimeError(err)
	}
	return marshal(st.Public())
}

func (h *Handlers) rpcPlayerView(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req matchRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.MatchID == "" {
		return "", runtime.NewError("match_id is required", codeInvalidArgument)
	}
	playerID, err := h.seat(ctx, req.MatchID, req.SeatToken)
	if err != nil {
		return "", err
	}
	view, err := h.Service.PlayerView(ctx, req.MatchID, playerID)
	if err != nil {
		return "", toRuntimeError(err)
	}
	return marshal(view)
}

func (h *Handlers) rpcListMatches(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		Limit int `json:"limit"`
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", runtime.NewError("invalid payload", codeInvalidArgument)
		}
	}
	if req.Limit <= 0 || req.Limit > h.ListLimit {
		req.Limit = h.ListLimit
	}
	list, err := h.Service.ListMatches(ctx, req.Limit)
	if err != nil {
		logger.Error("RpcListMatches: Failed to list matches: %v", err)
		return "", toRuntimeError(err)
	}
	return marshal(map[string]interface{}{"matches": list})
}

func (h *Handlers) rpcCallBid(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return h.act(ctx, logger, "RpcCallBid", payload, func(req actionRequest, playerID string) (*app.State, []app.Event, error) {
		call, err := domain.ParseCall(req.Call)
		if err != nil {
			return nil, nil, err
		}
		return h.Service.CallBid(ctx, req.MatchID, playerID, call)
	})
}

func (h *Handlers) rpcPlayCard(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return h.act(ctx, logger, "RpcPlayCard", payload, func(req actionRequest, playerID string) (*app.State, []app.Event, error) {
		return h.Service.PlayCard(ctx, req.MatchID, playerID, req.CardIndex)
	})
}

func (h *Handlers) rpcAccept(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return h.act(ctx, logger, "RpcAccept", payload, func(req actionRequest, playerID string) (*app.State, []app.Event, error) {
		return h.Service.Accept(ctx, req.MatchID, playerID)
	})
}

func (h *Handlers) rpcReject(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return h.act(ctx, logger, "RpcReject", payload, func(req actionRequest, playerID string) (*app.State, []app.Event, error) {
		return h.Service.Reject(ctx, req.MatchID, playerID)
	})
}

func (h *Handlers) rpcFold(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return h.act(ctx, logger, "RpcFold", payload, func(req actionRequest, playerID string) (*app.State, []app.Event, error) {
		return h.Service.Fold(ctx, req.MatchID, playerID)
	})
}

func (h *Handlers) rpcReloadRules(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	if !h.Admins[userID] {
		logger.Warn("RpcReloadRules [User:%s]: Not an admin.", userID)
		return "", runtime.NewError("admin only", codePermissionDenied)
	}
	if err := h.Rules.Reload(); err != nil {
		logger.Error("RpcReloadRules [User:%s]: Reload failed, keeping current rules: %v", userID, err)
		return "", toRuntimeError(err)
	}
	name := h.Rules.Current().Name()
	logger.Info("RpcReloadRules [User:%s]: Loaded rule set %s", userID, name)
	return marshal(map[string]string{"ruleset": name})
}

// act runs one action for the seated caller and relays its events to the table.
func (h *Handlers) act(ctx context.Context, logger runtime.Logger, op, payload string, do func(req actionRequest, playerID string) (*app.State, []app.Event, error)) (string, error) {
	var req actionRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.MatchID == "" {
		return "", runtime.NewError("match_id is required", codeInvalidArgument)
	}
	playerID, err := h.seat(ctx, req.MatchID, req.SeatToken)
	if err != nil {
		return "", err
	}

	st, events, err := do(req, playerID)
	if err != nil {
		logger.Debug("%s [Player:%s]: Match %s refused: %v", op, playerID, req.MatchID, err)
		return "", toRuntimeError(err)
	}
	ports.PublishAll(ctx, h.Notifier, req.MatchID, app.Notifications(req.MatchID, events))
	return marshal(ActionResponse{State: st.Public(), Legal: st.Legal[playerID]})
}

// seat resolves the acting player: the seat token's player when a token is
// sent, otherwise the caller's own user id.
func (h *Handlers) seat(ctx context.Context, matchID, token string) (string, error) {
	if token == "" {
		return callerID(ctx)
	}
	mid, playerID, err := h.Tokens.Verify(token)
	if err != nil {
		return "", runtime.NewError("invalid seat token", codePermissionDenied)
	}
	if mid != matchID {
		return "", runtime.NewError("seat token is for another match", codePermissionDenied)
	}
	return playerID, nil
}

func callerID(ctx context.Context) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("authentication required", codeUnauthenticated)
	}
	return userID, nil
}

// errorCode maps service errors to gRPC status codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, app.ErrValidation), errors.Is(err, domain.ErrUnknownCall):
		return codeInvalidArgument
	case errors.Is(err, app.ErrNotFound):
		return codeNotFound
	case errors.Is(err, app.ErrIllegalAction):
		return codeFailedPrecondition
	case errors.Is(err, app.ErrConcurrencyConflict):
		return codeAborted
	case errors.Is(err, app.ErrRulesetUnavailable):
		return codeUnavailable
	case errors.Is(err, app.ErrInvalidSeatToken):
		return codePermissionDenied
	default:
		return codeInternal
	}
}

func toRuntimeError(err error) error {
	code := errorCode(err)
	if code == codeInternal {
		return runtime.NewError("internal error", code)
	}
	return runtime.NewError(err.Error(), code)
}

func marshal(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", runtime.NewError("failed to encode response", codeInternal)
	}
	return string(b), nil
}
