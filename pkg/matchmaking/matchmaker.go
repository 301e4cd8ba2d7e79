package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/argus-labs/arena/pkg/match"
	"github.com/argus-labs/arena/pkg/statsd"
)

// Matches creates matches and tells whether a player is already playing. *match.Registry implements it.
type Matches interface {
	Create(players [2]match.Identity) (*match.Match, error)
	InActiveMatch(playerID string) bool
	Leave(playerID string)
}

// Notifier delivers pairing results and reports which players still hold a connection.
type Notifier interface {
	match.Notifier
	Connected(playerID string) bool
}

// Matchmaker owns the queue and turns each pair it yields into a match.
type Matchmaker struct {
	queue    *Queue
	matches  Matches
	notifier Notifier
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	// pairMu serializes pairing so two enqueues cannot race for the same head of the queue.
	pairMu sync.Mutex
}

func NewMatchmaker(
	queue *Queue, matches Matches, notifier Notifier, logger zerolog.Logger, tracer trace.Tracer,
) *Matchmaker {
	return &Matchmaker{
		queue:    queue,
		matches:  matches,
		notifier: notifier,
		logger:   logger,
		tracer:   tracer,
		now:      time.Now,
	}
}

// Queue exposes the underlying queue.
func (mm *Matchmaker) Queue() *Queue {
	return mm.queue
}

// FindMatch queues a player and pairs as many waiting players as possible.
func (mm *Matchmaker) FindMatch(ctx context.Context, player match.Identity) error {
	if mm.matches.InActiveMatch(player.ID) {
		return match.ErrAlreadyInMatch
	}
	if _, added := mm.queue.Enqueue(player, mm.now()); added {
		mm.logger.Debug().Str("player_id", player.ID).Msg("player queued")
	}
	mm.pair(ctx)
	return nil
}

// CancelFindMatch removes a waiting player. It is a no-op for players that are not waiting.
func (mm *Matchmaker) CancelFindMatch(playerID string) bool {
	removed := mm.queue.Cancel(playerID)
	if removed {
		mm.logger.Debug().Str("player_id", playerID).Msg("player left the queue")
		statsd.EmitGauge("matchmaking.queue_length", float64(mm.queue.Len()))
	}
	return removed
}

func (mm *Matchmaker) pair(ctx context.Context) {
	mm.pairMu.Lock()
	defer mm.pairMu.Unlock()

	for {
		first, second, ok := mm.queue.DequeuePairIfAvailable()
		if !ok {
			break
		}
		mm.start(ctx, first, second)
	}
	statsd.EmitGauge("matchmaking.queue_length", float64(mm.queue.Len()))
}

func (mm *Matchmaker) start(ctx context.Context, first, second *Ticket) {
	_, span := mm.tracer.Start(ctx, "matchmaking.pair", trace.WithAttributes(
		attribute.String("player1.id", first.Player.ID),
		attribute.String("player2.id", second.Player.ID),
	))
	defer span.End()

	players := [2]match.Identity{first.Player, second.Player}
	m, err := mm.matches.Create(players)
	if err != nil {
		span.RecordError(err)
		mm.handleCreateFailure(first, second, err)
		return
	}

	now := mm.now()
	mm.logger.Info().
		Str("match_id", m.ID()).
		Str("player1_id", first.Player.ID).
		Str("player2_id", second.Player.ID).
		Dur("player1_wait", now.Sub(first.CreatedAt)).
		Dur("player2_wait", now.Sub(second.CreatedAt)).
		Msg("players paired")
	mm.notifier.Broadcast(
		[]string{first.Player.ID, second.Player.ID},
		match.NewMatchFound(m.ID(), players[:]),
	)

	// A player whose connection closed after being dequeued found no match to leave. The match exists now,
	// so later disconnects reach it through the transport and earlier ones are forfeited here.
	for _, p := range players {
		if !mm.notifier.Connected(p.ID) {
			mm.logger.Info().Str("match_id", m.ID()).Str("player_id", p.ID).Msg("player disconnected while pairing")
			mm.matches.Leave(p.ID)
		}
	}
}

// handleCreateFailure handles a failed match creation. A player found to be in another match is dropped
// and the other goes back to the head of the queue. Any other failure drops both with a notice.
func (mm *Matchmaker) handleCreateFailure(first, second *Ticket, err error) {
	if eris.Is(err, match.ErrAlreadyInMatch) {
		for _, pair := range [][2]*Ticket{{first, second}, {second, first}} {
			busy, other := pair[0], pair[1]
			if mm.matches.InActiveMatch(busy.Player.ID) && !mm.matches.InActiveMatch(other.Player.ID) {
				mm.queue.requeueFront(other)
				mm.notifier.Send(busy.Player.ID, match.NewActionInvalid(err))
				return
			}
		}
	}
	mm.logger.Error().Err(err).Msg("failed to create match")
	for _, t := range []*Ticket{first, second} {
		mm.notifier.Send(t.Player.ID, match.NewActionInvalid(eris.New("could not start match, please search again")))
	}
}

// Waiting returns the number of queued players.
func (mm *Matchmaker) Waiting() int {
	return mm.queue.Len()
}
