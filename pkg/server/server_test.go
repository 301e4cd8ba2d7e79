package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/argus-labs/arena/pkg/auth"
	"github.com/argus-labs/arena/pkg/catalog"
	"github.com/argus-labs/arena/pkg/match"
	"github.com/argus-labs/arena/pkg/matchmaking"
)

type fixture struct {
	addr     string
	resolver *auth.Resolver
	registry *match.Registry
	hub      *Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cards, err := catalog.New([]catalog.CardDefinition{
		{ID: "imp", Category: catalog.CategoryUnit, Cost: 2, SynergyTag: "Fire", BaseHealth: 100,
			BaseDamage: 10, Speed: 1, Range: 1, AttackIntervalMs: 1000},
		{ID: "golem", Category: catalog.CategoryUnit, Cost: 8, BaseHealth: 800,
			BaseDamage: 40, Speed: 1, Range: 1, AttackIntervalMs: 1500},
	})
	require.NoError(t, err)

	hub := NewHub(zerolog.Nop())
	rules := match.DefaultRules()
	rules.TickInterval = 10 * time.Millisecond
	registry, err := match.NewRegistry(match.RegistryOptions{Rules: rules, Catalog: cards, Notifier: hub})
	require.NoError(t, err)

	resolver, err := auth.NewResolver("test-secret", "arena")
	require.NoError(t, err)

	mm := matchmaking.NewMatchmaker(matchmaking.NewQueue(), registry, hub, zerolog.Nop(),
		noop.NewTracerProvider().Tracer("test"))

	srv, err := New(Options{Resolver: resolver, Matchmaker: mm, Matches: registry, Hub: hub, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.ServeListener(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-served)
		require.NoError(t, registry.Shutdown(context.Background()))
	})

	return &fixture{addr: ln.Addr().String(), resolver: resolver, registry: registry, hub: hub}
}

func (f *fixture) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	token, err := f.resolver.Issue(match.Identity{ID: id, DisplayName: "Player " + id}, time.Hour)
	require.NoError(t, err)

	u := url.URL{Scheme: "ws", Host: f.addr, Path: "/ws", RawQuery: "token=" + token}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return f.hub.Connected(id) }, time.Second, 5*time.Millisecond)
	return conn
}

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
}

// expect reads until an event with the given name arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var r received
		require.NoError(t, json.Unmarshal(msg, &r))
		if r.Event == event {
			return r
		}
	}
}

func TestServer_MatchFlow(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "a")
	b := f.dial(t, "b")

	send(t, a, EventFindMatch, nil)
	send(t, b, EventFindMatch, nil)

	var found match.MatchFound
	require.NoError(t, json.Unmarshal(expect(t, a, match.EventMatchFound).Data, &found))
	assert.NotEmpty(t, found.MatchID)
	assert.ElementsMatch(t, []match.Identity{{ID: "a", DisplayName: "Player a"}, {ID: "b", DisplayName: "Player b"}},
		found.Players)
	expect(t, b, match.EventMatchFound)

	send(t, a, EventPlayCard, map[string]any{"cardId": "imp", "positionX": 4, "positionY": 4})
	var snap match.Snapshot
	for len(snap.Units) == 0 {
		require.NoError(t, json.Unmarshal(expect(t, b, match.EventGameStateUpdate).Data, &snap))
	}
	require.Len(t, snap.Units, 1)
	assert.Equal(t, found.MatchID, snap.MatchID)
	assert.Equal(t, "a", snap.Units[0].OwnerID)

	// Rejected actions go to the actor only.
	send(t, b, EventPlayCard, map[string]any{"cardId": "golem", "positionX": 4, "positionY": 20})
	var invalid match.ActionInvalid
	require.NoError(t, json.Unmarshal(expect(t, b, match.EventActionInvalid).Data, &invalid))
	assert.Equal(t, match.ErrInsufficientEnergy.Error(), invalid.Message)

	// Disconnecting forfeits.
	require.NoError(t, a.Close())
	var left match.OpponentLeft
	require.NoError(t, json.Unmarshal(expect(t, b, match.EventOpponentLeft).Data, &left))
	assert.Equal(t, "a", left.PlayerID)

	var over match.GameOver
	require.NoError(t, json.Unmarshal(expect(t, b, match.EventGameOver).Data, &over))
	require.NotNil(t, over.WinnerID)
	assert.Equal(t, "b", *over.WinnerID)
	assert.Equal(t, match.ReasonForfeit, over.Reason)
}

func TestServer_InvalidMessages(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "a")

	cases := []struct {
		event string
		data  any
		want  string
	}{
		{event: "emote", want: match.ErrInvalidActionType.Error()},
		{event: EventPlayCard, data: map[string]any{"cardId": "imp"}, want: "required"},
		{event: EventPlayCard, data: map[string]any{"cardId": "imp", "positionX": 1, "positionY": 1},
			want: match.ErrMatchNotFound.Error()},
	}
	for _, tc := range cases {
		send(t, a, tc.event, tc.data)
		var invalid match.ActionInvalid
		require.NoError(t, json.Unmarshal(expect(t, a, match.EventActionInvalid).Data, &invalid))
		assert.Contains(t, invalid.Message, tc.want)
	}

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{")))
	var invalid match.ActionInvalid
	require.NoError(t, json.Unmarshal(expect(t, a, match.EventActionInvalid).Data, &invalid))
	assert.Equal(t, errMalformedMessage.Error(), invalid.Message)
}

func TestServer_CancelAndDisconnectLeaveQueue(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "a")

	send(t, a, EventFindMatch, nil)
	send(t, a, EventCancelFindMatch, nil)
	send(t, a, EventFindMatch, nil)
	waitHealth(t, f, func(h GetHealthResponse) bool { return h.WaitingPlayers == 1 })

	require.NoError(t, a.Close())
	waitHealth(t, f, func(h GetHealthResponse) bool { return h.WaitingPlayers == 0 && h.Connections == 0 })
}

func TestServer_ReplacedConnectionDoesNotForfeit(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "a")
	b := f.dial(t, "b")
	send(t, a, EventFindMatch, nil)
	send(t, b, EventFindMatch, nil)
	expect(t, a, match.EventMatchFound)

	f.dial(t, "a")
	require.NoError(t, a.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			break
		}
	}

	// The old socket's read loop has exited by now; give it a moment to run its cleanup.
	assert.Never(t, func() bool { return !f.registry.InActiveMatch("a") }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 2, health(t, f).Connections)
	assert.Equal(t, 1, health(t, f).ActiveMatches)
}

func TestServer_RejectsBadToken(t *testing.T) {
	f := newFixture(t)

	u := url.URL{Scheme: "ws", Host: f.addr, Path: "/ws", RawQuery: "token=nope"}
	_, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	plain, err := http.Get("http://" + f.addr + "/ws")
	require.NoError(t, err)
	defer plain.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, plain.StatusCode)
}

func health(t *testing.T, f *fixture) GetHealthResponse {
	t.Helper()
	h, err := fetchHealth(f.addr)
	require.NoError(t, err)
	assert.True(t, h.IsServerRunning)
	return h
}

// waitHealth polls /health until cond holds. It is safe to call from Eventually.
func waitHealth(t *testing.T, f *fixture, cond func(GetHealthResponse) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		h, err := fetchHealth(f.addr)
		return err == nil && cond(h)
	}, time.Second, 5*time.Millisecond)
}

func fetchHealth(addr string) (GetHealthResponse, error) {
	var h GetHealthResponse
	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		return h, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&h)
	return h, err
}
