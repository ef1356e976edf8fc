package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fabianaguero/truco/internal/app"
	"github.com/fabianaguero/truco/internal/config"
	"github.com/fabianaguero/truco/internal/domain"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	MatchLabelKey_MatchID = "match_id" // Key for the truco match id in the table label
	seatTokenMetadataKey  = "seat_token"
)

// TableState holds the runtime state of one realtime table. The match itself
// lives in storage; the table only relays actions and events.
type TableState struct {
	MatchID    string                      `json:"match_id"`
	Phase      domain.Phase                `json:"phase"`
	Seats      map[string]string           `json:"seats"`      // Map UserId -> seated player id
	Presences  map[string]runtime.Presence `json:"-"`          // Map UserId -> Presence for targeted messaging
	EmptyTicks int64                       `json:"empty_ticks"` // Ticks since the last presence left
	Tick       int64                       `json:"tick"`
}

// SeatedPresences returns the presences bound to playerID.
func (ts *TableState) SeatedPresences(playerID string) []runtime.Presence {
	var out []runtime.Presence
	for userID, pid := range ts.Seats {
		if pid != playerID {
			continue
		}
		if p, ok := ts.Presences[userID]; ok {
			out = append(out, p)
		}
	}
	return out
}

type tableHandler struct {
	svc    *app.Service
	tokens *app.SeatTokens
}

func newTableHandler(svc *app.Service, tokens *app.SeatTokens) *tableHandler {
	return &tableHandler{svc: svc, tokens: tokens}
}

// MatchInit is called when the table is created.
func (th *tableHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	matchID, _ := params[MatchLabelKey_MatchID].(string)
	if matchID == "" {
		logger.Error("MatchInit: Missing %s param.", MatchLabelKey_MatchID)
		return nil, 0, ""
	}
	st, err := th.svc.GetState(ctx, matchID)
	if err != nil {
		logger.Error("MatchInit: Cannot open table for match %s: %v", matchID, err)
		return nil, 0, ""
	}

	state := &TableState{
		MatchID:   matchID,
		Phase:     st.Match.Phase,
		Seats:     make(map[string]string),
		Presences: make(map[string]runtime.Presence),
		Tick:      time.Now().Unix(),
	}
	label, err := tableLabel(state)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	logger.Debug("MatchInit: Table opened for match %s.", matchID)
	return state, config.GetGameConfig().GetTableTickRate(), label
}

// MatchJoinAttempt binds a seat when the join carries a valid seat token.
// Joins without a token are observers.
func (th *tableHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	ts, ok := state.(*TableState)
	if !ok {
		return state, false, "state not found"
	}
	token := metadata[seatTokenMetadataKey]
	if token == "" {
		return ts, true, ""
	}
	matchID, playerID, err := th.tokens.Verify(token)
	if err != nil {
		logger.Warn("MatchJoinAttempt: User %s sent an invalid seat token: %v", presence.GetUserId(), err)
		return ts, false, "invalid seat token"
	}
	if matchID != ts.MatchID {
		return ts, false, "seat token is for another match"
	}
	ts.Seats[presence.GetUserId()] = playerID
	return ts, true, ""
}

func (th *tableHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ts, ok := state.(*TableState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return nil
	}
	for _, p := range presences {
		ts.Presences[p.GetUserId()] = p
		logger.Debug("MatchJoin: User %s joined table of match %s (seat=%q).", p.GetUserId(), ts.MatchID, ts.Seats[p.GetUserId()])
		th.sendSnapshot(ctx, ts, dispatcher, logger, p)
	}
	ts.EmptyTicks = 0
	return ts
}

func (th *tableHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ts, ok := state.(*TableState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return nil
	}
	for _, p := range presences {
		delete(ts.Presences, p.GetUserId())
		logger.Debug("MatchLeave: User %s left table of match %s.", p.GetUserId(), ts.MatchID)
	}
	return ts
}

func (th *tableHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	ts, ok := state.(*TableState)
	if !ok {
		logger.Error("MatchLoop: state not found")
		return nil
	}
	ts.Tick = tick

	if len(ts.Presences) == 0 {
		ts.EmptyTicks++
		if ts.EmptyTicks > config.GetGameConfig().GetTableIdleTicks() {
			logger.Info("MatchLoop: Closing idle table of match %s.", ts.MatchID)
			return nil
		}
	}

	for _, msg := range messages {
		th.handleMessage(ctx, ts, dispatcher, logger, msg)
	}
	return ts
}

func (th *tableHandler) handleMessage(ctx context.Context, ts *TableState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if msg.GetOpCode() == OpSync {
		if p, ok := ts.Presences[senderID]; ok {
			th.sendSnapshot(ctx, ts, dispatcher, logger, p)
		}
		return
	}

	playerID := ts.Seats[senderID]
	if playerID == "" {
		th.sendError(ts, dispatcher, logger, senderID, codePermissionDenied, "observers cannot act")
		return
	}

	var req actionRequest
	if data := msg.GetData(); len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			logger.Warn("handleMessage: Invalid payload from %s (op %d): %v", senderID, msg.GetOpCode(), err)
			th.sendError(ts, dispatcher, logger, senderID, codeInvalidArgument, "invalid payload")
			return
		}
	}

	var (
		st     *app.State
		events []app.Event
		err    error
	)
	switch msg.GetOpCode() {
	case OpCallBid:
		call, perr := domain.ParseCall(req.Call)
		if perr != nil {
			th.sendError(ts, dispatcher, logger, senderID, codeInvalidArgument, perr.Error())
			return
		}
		st, events, err = th.svc.CallBid(ctx, ts.MatchID, playerID, call)
	case OpPlayCard:
		st, events, err = th.svc.PlayCard(ctx, ts.MatchID, playerID, req.CardIndex)
	case OpAccept:
		st, events, err = th.svc.Accept(ctx, ts.MatchID, playerID)
	case OpReject:
		st, events, err = th.svc.Reject(ctx, ts.MatchID, playerID)
	case OpFold:
		st, events, err = th.svc.Fold(ctx, ts.MatchID, playerID)
	default:
		logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		return
	}
	if err != nil {
		logger.Debug("handleMessage: %s (player %s, op %d) refused: %v", ts.MatchID, playerID, msg.GetOpCode(), err)
		th.sendError(ts, dispatcher, logger, senderID, errorCode(err), err.Error())
		return
	}

	for _, n := range app.Notifications(ts.MatchID, events) {
		payload, err := json.Marshal(n.Payload)
		if err != nil {
			logger.Error("Failed to marshal event %s: %v", n.Type, err)
			continue
		}
		th.broadcast(ts, dispatcher, logger, signalMessage{Type: n.Type, MatchID: n.MatchID, Payload: payload, Recipients: n.Recipients})
	}
	if st.Match.Phase != ts.Phase {
		ts.Phase = st.Match.Phase
		th.updateLabel(ts, dispatcher, logger)
	}
}

// broadcast relays a notification to the table. Recipients are player ids;
// when none of them is connected, nothing is sent.
func (th *tableHandler) broadcast(ts *TableState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, sig signalMessage) {
	var recipients []runtime.Presence
	if len(sig.Recipients) > 0 {
		for _, pid := range sig.Recipients {
			recipients = append(recipients, ts.SeatedPresences(pid)...)
		}
		if len(recipients) == 0 {
			return
		}
	}

	bytes, err := json.Marshal(wireMessage{Type: sig.Type, MatchID: sig.MatchID, Payload: sig.Payload})
	if err != nil {
		logger.Error("Failed to marshal %s for table: %v", sig.Type, err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpEvent, bytes, recipients, nil, true); err != nil {
		logger.Warn("Broadcast of %s failed: %v", sig.Type, err)
	}
}

// sendSnapshot sends a presence its view of the match: seated players get
// their hand, observers the public state.
func (th *tableHandler) sendSnapshot(ctx context.Context, ts *TableState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, p runtime.Presence) {
	var snapshot interface{}
	if pid := ts.Seats[p.GetUserId()]; pid != "" {
		view, err := th.svc.PlayerView(ctx, ts.MatchID, pid)
		if err != nil {
			logger.Warn("sendSnapshot: No view for player %s: %v", pid, err)
			return
		}
		snapshot = view
	} else {
		st, err := th.svc.GetState(ctx, ts.MatchID)
		if err != nil {
			logger.Warn("sendSnapshot: No state for match %s: %v", ts.MatchID, err)
			return
		}
		snapshot = st.Public()
	}
	bytes, err := json.Marshal(wireMessage{Type: "snapshot", MatchID: ts.MatchID, Payload: snapshot})
	if err != nil {
		logger.Error("Failed to marshal snapshot: %v", err)
		return
	}
	dispatcher.BroadcastMessage(OpSnapshot, bytes, []runtime.Presence{p}, nil, true)
}

type tableError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error to a specific user.
func (th *tableHandler) sendError(ts *TableState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	presence, ok := ts.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}
	bytes, err := json.Marshal(tableError{Code: code, Message: message})
	if err != nil {
		logger.Error("Failed to marshal table error: %v", err)
		return
	}
	dispatcher.BroadcastMessage(OpError, bytes, []runtime.Presence{presence}, nil, true)
}

func tableLabel(ts *TableState) (string, error) {
	label, err := structpb.NewStruct(map[string]interface{}{
		MatchLabelKey_MatchID: ts.MatchID,
		"phase":               string(ts.Phase),
		"game":                "truco",
	})
	if err != nil {
		return "", err
	}
	b, err := (&protojson.MarshalOptions{EmitUnpopulated: true}).Marshal(label)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (th *tableHandler) updateLabel(ts *TableState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := tableLabel(ts)
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (th *tableHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Table terminated with %d grace seconds", graceSeconds)
	return state
}

// MatchSignal relays notifications produced by RPC calls on the same match.
func (th *tableHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	ts, ok := state.(*TableState)
	if !ok {
		return state, "state not found"
	}
	var batch signalBatch
	if err := json.Unmarshal([]byte(data), &batch); err != nil {
		logger.Warn("MatchSignal: Invalid signal: %v", err)
		return ts, "invalid signal"
	}
	if batch.MatchID != ts.MatchID {
		return ts, "wrong match"
	}
	phaseMoved := false
	for _, sig := range batch.Messages {
		th.broadcast(ts, dispatcher, logger, sig)
		switch sig.Type {
		case string(app.EventHandResolved), string(app.EventMatchFinished), string(app.EventHandStarted):
			phaseMoved = true
		}
	}
	if phaseMoved {
		if st, err := th.svc.GetState(ctx, ts.MatchID); err == nil && st.Match.Phase != ts.Phase {
			ts.Phase = st.Match.Phase
			th.updateLabel(ts, dispatcher, logger)
		}
	}
	return ts, ""
}
