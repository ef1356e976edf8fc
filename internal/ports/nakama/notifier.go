package nakama

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fabianaguero/truco/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const signalTimeout = 5 * time.Second

// signalMessage is one notification relayed into a realtime table.
type signalMessage struct {
	Type       string          `json:"type"`
	MatchID    string          `json:"match_id"`
	Payload    json.RawMessage `json:"payload"`
	Recipients []string        `json:"recipients,omitempty"`
}

// signalBatch carries every notification of one committed transition.
type signalBatch struct {
	MatchID  string          `json:"match_id"`
	Messages []signalMessage `json:"messages"`
}

// wireMessage is what table presences receive.
type wireMessage struct {
	Type    string      `json:"type"`
	MatchID string      `json:"match_id"`
	Payload interface{} `json:"payload"`
}

// TableNotifier forwards notifications to the realtime table hosting a match.
// Delivery runs in the background; matches without an open table are skipped.
type TableNotifier struct {
	nk      runtime.NakamaModule
	logger  runtime.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewTableNotifier(nk runtime.NakamaModule, logger runtime.Logger) *TableNotifier {
	return &TableNotifier{nk: nk, logger: logger, timeout: signalTimeout}
}

func (t *TableNotifier) Publish(ctx context.Context, n ports.Notification) {
	t.PublishBatch(ctx, n.MatchID, []ports.Notification{n})
}

// PublishBatch sends ns to the match's table as one signal and returns at once.
func (t *TableNotifier) PublishBatch(ctx context.Context, matchID string, ns []ports.Notification) {
	if len(ns) == 0 {
		return
	}
	batch := signalBatch{MatchID: matchID, Messages: make([]signalMessage, 0, len(ns))}
	for _, n := range ns {
		payload, err := json.Marshal(n.Payload)
		if err != nil {
			t.logger.Error("TableNotifier: Failed to marshal %s payload: %v", n.Type, err)
			continue
		}
		batch.Messages = append(batch.Messages, signalMessage{Type: n.Type, MatchID: matchID, Payload: payload, Recipients: n.Recipients})
	}
	data, err := json.Marshal(batch)
	if err != nil {
		t.logger.Error("TableNotifier: Failed to marshal signal: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		t.send(ctx, matchID, string(data))
	}()
}

// Wait blocks until every signal in flight was delivered or dropped.
func (t *TableNotifier) Wait() {
	t.wg.Wait()
}

func (t *TableNotifier) send(ctx context.Context, matchID, data string) {
	tableID, err := findTable(ctx, t.nk, matchID)
	if err != nil {
		t.logger.Warn("TableNotifier: Failed to find table for match %s: %v", matchID, err)
		return
	}
	if tableID == "" {
		return
	}
	if _, err := t.nk.MatchSignal(ctx, tableID, data); err != nil {
		t.logger.Warn("TableNotifier: Signal to table %s failed: %v", tableID, err)
	}
}

// findTable returns the id of the authoritative table labelled with matchID, or "".
func findTable(ctx context.Context, nk runtime.NakamaModule, matchID string) (string, error) {
	query := fmt.Sprintf("+label.match_id:%q", matchID)
	minSize := 0
	tables, err := nk.MatchList(ctx, 1, true, "", &minSize, nil, query)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", nil
	}
	return tables[0].GetMatchId(), nil
}

var (
	_ ports.Notifier      = (*TableNotifier)(nil)
	_ ports.BatchNotifier = (*TableNotifier)(nil)
)
