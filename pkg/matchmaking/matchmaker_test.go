package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/argus-labs/arena/pkg/catalog"
	"github.com/argus-labs/arena/pkg/match"
)

type delivery struct {
	to    []string
	event match.Event
}

type recorder struct {
	mu     sync.Mutex
	events []delivery
	gone   map[string]bool
}

func (r *recorder) Connected(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.gone[playerID]
}

func (r *recorder) disconnect(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone == nil {
		r.gone = make(map[string]bool)
	}
	r.gone[playerID] = true
}

func (r *recorder) Send(playerID string, event match.Event) {
	r.Broadcast([]string{playerID}, event)
}

func (r *recorder) Broadcast(playerIDs []string, event match.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, delivery{to: append([]string(nil), playerIDs...), event: event})
}

func (r *recorder) named(name string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery
	for _, d := range r.events {
		if d.event.Name == name {
			out = append(out, d)
		}
	}
	return out
}

func newTestMatchmaker(t *testing.T) (*Matchmaker, *match.Registry, *recorder) {
	t.Helper()
	cards, err := catalog.New([]catalog.CardDefinition{
		{ID: "imp", Category: catalog.CategoryUnit, Cost: 2, BaseHealth: 100, BaseDamage: 10,
			Speed: 1, Range: 1, AttackIntervalMs: 1000},
	})
	require.NoError(t, err)

	rec := &recorder{}
	registry, err := match.NewRegistry(match.RegistryOptions{Catalog: cards, Notifier: rec})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, registry.Shutdown(context.Background())) })

	mm := NewMatchmaker(NewQueue(), registry, rec, zerolog.Nop(), noop.NewTracerProvider().Tracer("test"))
	return mm, registry, rec
}

func TestMatchmaker_PairsInArrivalOrder(t *testing.T) {
	mm, registry, rec := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.FindMatch(ctx, player("a")))
	assert.Empty(t, rec.named(match.EventMatchFound))

	require.NoError(t, mm.FindMatch(ctx, player("b")))
	require.NoError(t, mm.FindMatch(ctx, player("c")))

	found := rec.named(match.EventMatchFound)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"a", "b"}, found[0].to)
	payload := found[0].event.Data.(match.MatchFound)
	assert.Equal(t, []match.Identity{player("a"), player("b")}, payload.Players)

	m, err := registry.Get(payload.MatchID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, m.PlayerIDs())

	assert.True(t, mm.Queue().Contains("c"))
	assert.Equal(t, 1, mm.Queue().Len())
}

func TestMatchmaker_DuplicateFindMatch(t *testing.T) {
	mm, _, rec := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.FindMatch(ctx, player("a")))
	require.NoError(t, mm.FindMatch(ctx, player("a")))
	assert.Equal(t, 1, mm.Queue().Len())
	assert.Empty(t, rec.named(match.EventMatchFound))
}

func TestMatchmaker_RejectsPlayerInMatch(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.FindMatch(ctx, player("a")))
	require.NoError(t, mm.FindMatch(ctx, player("b")))

	require.ErrorIs(t, mm.FindMatch(ctx, player("a")), match.ErrAlreadyInMatch)
	assert.Zero(t, mm.Queue().Len())
}

func TestMatchmaker_Cancel(t *testing.T) {
	mm, _, rec := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.FindMatch(ctx, player("a")))
	assert.True(t, mm.CancelFindMatch("a"))
	assert.False(t, mm.CancelFindMatch("a"))

	require.NoError(t, mm.FindMatch(ctx, player("b")))
	assert.Empty(t, rec.named(match.EventMatchFound))
	assert.Equal(t, 1, mm.Queue().Len())
}

func TestMatchmaker_ConcurrentEnqueue(t *testing.T) {
	mm, registry, rec := newTestMatchmaker(t)
	ctx := context.Background()

	const players = 40
	var wg sync.WaitGroup
	for i := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mm.FindMatch(ctx, player(string(rune('A'+i)))))
		}()
	}
	wg.Wait()

	assert.Len(t, rec.named(match.EventMatchFound), players/2)
	assert.Zero(t, mm.Queue().Len())
	assert.Equal(t, players/2, registry.ActiveCount())
}

func TestMatchmaker_ForfeitsPlayerLostWhilePairing(t *testing.T) {
	mm, registry, rec := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.FindMatch(ctx, player("a")))
	// The connection is gone but the ticket was never cancelled, as when the player is dequeued first.
	rec.disconnect("a")
	require.NoError(t, mm.FindMatch(ctx, player("b")))

	require.Len(t, rec.named(match.EventMatchFound), 1)
	require.Eventually(t, func() bool {
		return !registry.InActiveMatch("b")
	}, time.Second, 5*time.Millisecond)

	left := rec.named(match.EventOpponentLeft)
	require.Len(t, left, 1)
	assert.Equal(t, []string{"b"}, left[0].to)

	over := rec.named(match.EventGameOver)
	require.Len(t, over, 1)
	gameOver := over[0].event.Data.(match.GameOver)
	require.NotNil(t, gameOver.WinnerID)
	assert.Equal(t, "b", *gameOver.WinnerID)
	assert.Equal(t, match.ReasonForfeit, gameOver.Reason)
}
