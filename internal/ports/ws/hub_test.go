package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fabianaguero/truco/internal/app"
	"github.com/fabianaguero/truco/internal/domain"
	"github.com/fabianaguero/truco/internal/ports"
	"github.com/fabianaguero/truco/internal/ports/memstore"
	"github.com/fabianaguero/truco/internal/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type received struct {
	Type    string          `json:"type"`
	MatchID string          `json:"match_id"`
	Payload json.RawMessage `json:"payload"`
}

type rig struct {
	hub    *Hub
	srv    *httptest.Server
	match  *domain.Match
	tokens map[string]string
}

func newRig(t *testing.T, allow ...string) *rig {
	t.Helper()
	svc := app.NewService(memstore.NewMatchStore(), memstore.NewRosterStore(),
		rules.NewSource(rules.Builtin(), nil), rand.New(rand.NewSource(7)))
	seats := app.NewSeatTokens("hub-secret", time.Hour)
	st, _, err := svc.CreateMatch(context.Background(), app.RosterSpec{Teams: []app.TeamSpec{
		{Name: "Nosotros", Players: []app.PlayerSpec{{Name: "Ana"}}},
		{Name: "Ellos", Players: []app.PlayerSpec{{Name: "Beto"}}},
	}})
	require.NoError(t, err)
	tokens, err := seats.IssueAll(st.Match.ID, st.Match.Turn.Seats)
	require.NoError(t, err)

	hub := NewHub(svc, seats, allow, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(srv.Close)
	return &rig{hub: hub, srv: srv, match: st.Match, tokens: tokens}
}

func (r *rig) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws/" + r.match.ID
	if token != "" {
		url += "?seat_token=" + token
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func read(t *testing.T, c *websocket.Conn) received {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg received
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubSendsSnapshotOnConnect(t *testing.T) {
	r := newRig(t)
	mano := r.match.Turn.Seats[0]

	seated := read(t, r.dial(t, r.tokens[mano]))
	require.Equal(t, "snapshot", seated.Type)
	var view app.PlayerView
	require.NoError(t, json.Unmarshal(seated.Payload, &view))
	assert.Equal(t, mano, view.PlayerID)
	assert.Len(t, view.Hand, domain.CardsPerHand)

	observer := read(t, r.dial(t, ""))
	require.Equal(t, "snapshot", observer.Type)
	var st app.State
	require.NoError(t, json.Unmarshal(observer.Payload, &st))
	for _, team := range st.Match.Teams {
		for _, p := range team.Players {
			assert.Nil(t, p.Hand, "observer sees the hand of %s", p.ID)
		}
	}
}

func TestHubRoutesPrivateNotifications(t *testing.T) {
	r := newRig(t)
	mano := r.match.Turn.Seats[0]
	seated := r.dial(t, r.tokens[mano])
	observer := r.dial(t, "")
	read(t, seated)
	read(t, observer)
	require.Equal(t, 2, r.hub.Watchers(r.match.ID))

	ctx := context.Background()
	r.hub.Publish(ctx, ports.Notification{Type: "hand_dealt", MatchID: r.match.ID, Recipients: []string{mano}})
	r.hub.Publish(ctx, ports.Notification{Type: "card_played", MatchID: r.match.ID})
	r.hub.Publish(ctx, ports.Notification{Type: "card_played", MatchID: "another-match"})

	assert.Equal(t, "hand_dealt", read(t, seated).Type)
	assert.Equal(t, "card_played", read(t, seated).Type)
	got := read(t, observer)
	assert.Equal(t, "card_played", got.Type)
	assert.Equal(t, r.match.ID, got.MatchID)
}

func TestHubSyncResendsSnapshot(t *testing.T) {
	r := newRig(t)
	c := r.dial(t, "")
	read(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"sync"}`)))
	assert.Equal(t, "snapshot", read(t, c).Type)
}

func TestHubRefusesBadRequests(t *testing.T) {
	r := newRig(t, "https://truco.example")
	other := r.match.Turn.Seats[1]

	tests := []struct {
		name   string
		path   string
		origin string
		want   int
	}{
		{"ForeignOrigin", r.match.ID, "https://evil.example", http.StatusForbidden},
		{"ForgedToken", r.match.ID + "?seat_token=abc.def.ghi", "", http.StatusForbidden},
		{"TokenForOtherMatch", "m-other?seat_token=" + r.tokens[other], "", http.StatusForbidden},
		{"UnknownMatch", "m-missing", "https://truco.example", http.StatusNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/"+test.path, nil)
			if test.origin != "" {
				req.Header.Set("Origin", test.origin)
			}
			rec := httptest.NewRecorder()
			r.hub.ServeWS(rec, req, strings.SplitN(test.path, "?", 2)[0])
			assert.Equal(t, test.want, rec.Code)
		})
	}
	assert.Zero(t, r.hub.Watchers(r.match.ID))
}

func TestHubOriginPolicy(t *testing.T) {
	tests := []struct {
		name   string
		allow  []string
		origin func(r *rig) string
		ok     bool
	}{
		{"NoListForeignOrigin", nil, func(*rig) string { return "https://evil.example" }, false},
		{"NoListSameOrigin", nil, func(r *rig) string { return r.srv.URL }, true},
		{"ListedOrigin", []string{"https://truco.example"}, func(*rig) string { return "https://truco.example" }, true},
		{"UnlistedOrigin", []string{"https://truco.example"}, func(r *rig) string { return r.srv.URL }, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := newRig(t, test.allow...)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws/" + r.match.ID
			c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
				HTTPHeader: http.Header{"Origin": []string{test.origin(r)}},
			})
			if test.ok {
				require.NoError(t, err)
				_ = c.Close(websocket.StatusNormalClosure, "")
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
