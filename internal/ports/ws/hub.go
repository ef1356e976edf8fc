// Package ws pushes match notifications to websocket observers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fabianaguero/truco/internal/app"
	"github.com/fabianaguero/truco/internal/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	pingInterval = 15 * time.Second
	sendBuffer   = 64
)

// Msg is the envelope written to every socket.
type Msg struct {
	Type    string      `json:"type"`
	MatchID string      `json:"match_id"`
	Payload interface{} `json:"payload,omitempty"`
}

// Client is one socket watching one match, optionally bound to a seat.
type Client struct {
	id       string
	matchID  string
	playerID string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub tracks sockets per match and implements ports.Notifier.
type Hub struct {
	allowOrigins   map[string]bool
	originPatterns []string
	svc            *app.Service
	tokens         *app.SeatTokens
	logger         *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub returns a hub accepting sockets from the allow listed origins. An
// empty list only admits same-origin browsers.
func NewHub(svc *app.Service, tokens *app.SeatTokens, allow []string, logger *zap.Logger) *Hub {
	m := map[string]bool{}
	var patterns []string
	for _, a := range allow {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		m[a] = true
		patterns = append(patterns, originHost(a))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		allowOrigins:   m,
		originPatterns: patterns,
		svc:            svc,
		tokens:         tokens,
		logger:         logger,
		clients:        map[*Client]struct{}{},
	}
}

// originHost strips the scheme; websocket origin patterns match hosts.
func originHost(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}

// Publish queues n for every socket watching its match. Notifications with
// recipients only reach sockets seated as one of them. Slow sockets drop messages.
func (h *Hub) Publish(ctx context.Context, n ports.Notification) {
	b, err := json.Marshal(Msg{Type: n.Type, MatchID: n.MatchID, Payload: n.Payload})
	if err != nil {
		h.logger.Error("marshal notification", zap.String("type", n.Type), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.matchID != n.MatchID || !addressed(c, n.Recipients) {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.logger.Warn("dropping notification for slow client",
				zap.String("client", c.id), zap.String("match_id", c.matchID), zap.String("type", n.Type))
		}
	}
}

func addressed(c *Client, recipients []string) bool {
	if len(recipients) == 0 {
		return true
	}
	for _, id := range recipients {
		if id == c.playerID {
			return true
		}
	}
	return false
}

// Watchers returns how many sockets watch matchID.
func (h *Hub) Watchers(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.matchID == matchID {
			n++
		}
	}
	return n
}

// ServeWS upgrades the request and streams matchID's notifications. A
// seat_token query parameter binds the socket to a seat so it also receives
// that player's private notifications.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, matchID string) {
	origin := r.Header.Get("Origin")
	if origin != "" && len(h.allowOrigins) > 0 && !h.allowOrigins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	playerID := ""
	if token := r.URL.Query().Get("seat_token"); token != "" {
		mid, pid, err := h.tokens.Verify(token)
		if err != nil || mid != matchID {
			http.Error(w, "invalid seat token", http.StatusForbidden)
			return
		}
		playerID = pid
	}

	ctx := r.Context()
	snapshot, err := h.snapshot(ctx, matchID, playerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("upgrade refused", zap.String("origin", origin), zap.Error(err))
		return
	}
	client := &Client{id: uuid.NewString(), matchID: matchID, playerID: playerID, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client connected",
		zap.String("client", client.id), zap.String("match_id", matchID), zap.String("player_id", playerID))
	h.sendTo(client, Msg{Type: "snapshot", MatchID: matchID, Payload: snapshot})

	// writer
	done := make(chan struct{})
	go func() {
		defer close(done)
		ping := time.NewTicker(pingInterval)
		defer func() { ping.Stop(); _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
		for {
			select {
			case msg, ok := <-client.send:
				if !ok {
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					return
				}
			case <-ping.C:
				_ = conn.Ping(ctx)
			}
		}
	}()

	// reader
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var m Msg
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if m.Type == "sync" {
			if snap, err := h.snapshot(ctx, matchID, playerID); err == nil {
				h.sendTo(client, Msg{Type: "snapshot", MatchID: matchID, Payload: snap})
			}
		}
	}

	// disconnect
	h.mu.Lock()
	delete(h.clients, client)
	close(client.send)
	h.mu.Unlock()
	<-done
	h.logger.Info("client disconnected", zap.String("client", client.id), zap.String("match_id", matchID))
}

func (h *Hub) snapshot(ctx context.Context, matchID, playerID string) (interface{}, error) {
	if playerID != "" {
		return h.svc.PlayerView(ctx, matchID, playerID)
	}
	st, err := h.svc.GetState(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return st.Public(), nil
}

func (h *Hub) sendTo(c *Client, msg Msg) {
	b, _ := json.Marshal(msg)
	select {
	case c.send <- b:
	default:
	}
}

var _ ports.Notifier = (*Hub)(nil)
