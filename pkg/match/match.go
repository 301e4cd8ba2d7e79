package match

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/argus-labs/arena/pkg/history"
	"github.com/argus-labs/arena/pkg/statsd"
)

// Match runs one session on its own goroutine. Actions submitted from any goroutine are queued and applied
// by that goroutine at the start of the next tick, so actions never interleave with a tick in progress.
type Match struct {
	session *Session
	actions *queue
	stage   *stageManager

	rules          Rules
	notifier       Notifier
	sink           history.Sink
	persistTimeout time.Duration
	logger         zerolog.Logger
	tracer         trace.Tracer
	capture        func(context.Context, error)
	now            func() time.Time
	onEnded        func(*Match)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// tickFn is the per-tick body; tests replace it to inject failures.
	tickFn func(now time.Time) TickResult

	pending []pendingAction
}

// ID returns the match id.
func (m *Match) ID() string {
	return m.session.ID
}

// PlayerIDs returns both participant ids in seat order.
func (m *Match) PlayerIDs() []string {
	return []string{m.session.Players[0].ID, m.session.Players[1].ID}
}

// Stage returns the current lifecycle stage.
func (m *Match) Stage() Stage {
	return m.stage.Current()
}

// Done is closed once the match goroutine has exited and will never tick again.
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// Submit queues a player action for the next tick.
func (m *Match) Submit(playerID string, action Action) error {
	if m.stage.Current() != StageActive {
		return ErrMatchEnded
	}
	return m.actions.enqueue(playerID, action)
}

// Leave queues a forfeit for a participant who disconnected.
func (m *Match) Leave(playerID string) {
	if m.stage.Current() != StageActive {
		return
	}
	_ = m.actions.enqueue(playerID, Action{Type: ActionForfeit})
}

// Stop force-ends the match with no winner and blocks until its goroutine has exited.
// Stopping an ended match only waits for the goroutine.
func (m *Match) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// run is the scheduler loop. It returns once the match has ended.
func (m *Match) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.rules.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.tick(m.now()) {
				return
			}
		case <-m.stop:
			m.session.End("", ReasonShutdown)
			m.finish()
			return
		}
	}
}

// tick runs one guarded tick and reports whether the match ended.
func (m *Match) tick(now time.Time) bool {
	start := time.Now()
	defer statsd.EmitTickStat(start, "match")

	res, err := m.guardedTick(now)
	if err != nil {
		m.logger.Error().Err(err).Msg(eris.ToString(err, true))
		m.capture(context.Background(), err)
		m.session.End("", ReasonInternalError)
		m.finish()
		return true
	}

	if res.Changed {
		m.contain("broadcast state", func() { m.broadcast(newGameStateUpdate(m.session.Snapshot())) })
	}
	if res.Ended {
		m.finish()
		return true
	}
	return false
}

func (m *Match) guardedTick(now time.Time) (res TickResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Wrapf(ErrInternalTickFailure, "match %s: %v", m.ID(), r)
		}
	}()
	return m.tickFn(now), nil
}

// step drains queued actions and advances the session.
func (m *Match) step(now time.Time) TickResult {
	m.pending = m.pending[:0]
	m.actions.drain(&m.pending)
	// Everyone leaving in this batch is gone before any forfeit picks a winner.
	for _, p := range m.pending {
		if p.action.Type == ActionForfeit {
			m.session.Disconnect(p.playerID)
		}
	}
	for _, p := range m.pending {
		m.apply(p)
	}
	clear(m.pending)
	return m.session.Tick(now)
}

func (m *Match) apply(p pendingAction) {
	if p.action.Type == ActionForfeit {
		remaining, ended := m.session.Leave(p.playerID)
		if ended && remaining != "" {
			m.notifier.Send(remaining, newOpponentLeft(p.playerID))
		}
		return
	}
	if err := m.session.ApplyAction(p.playerID, p.action); err != nil {
		m.logger.Debug().Err(err).Str("player_id", p.playerID).Str("card_id", p.action.CardID).Msg("action rejected")
		m.notifier.Send(p.playerID, NewActionInvalid(err))
	}
}

// finish runs the termination sequence once the session has ended on this goroutine.
func (m *Match) finish() {
	if !m.stage.CompareAndSwap(StageActive, StageEnded) {
		return
	}
	winnerID, reason := m.session.Outcome()

	ctx, span := m.tracer.Start(context.Background(), "match.end", trace.WithAttributes(
		attribute.String("match.id", m.ID()),
		attribute.String("match.reason", string(reason)),
		attribute.String("match.winner", winnerID),
	))
	defer span.End()

	m.logger.Info().Str("winner_id", winnerID).Str("reason", string(reason)).Msg("match ended")
	m.contain("broadcast game over", func() { m.broadcast(newGameOver(winnerID, reason)) })
	statsd.EmitMatchEnded(string(reason))

	m.contain("persist result", func() {
		persistCtx, cancel := context.WithTimeout(ctx, m.persistTimeout)
		defer cancel()
		if err := m.sink.PersistMatchResult(persistCtx, m.session.Record(m.now())); err != nil {
			m.logger.Warn().Err(err).Msg("failed to persist match result")
			span.RecordError(err)
		}
	})

	if m.onEnded != nil {
		m.contain("release match", func() { m.onEnded(m) })
	}
}

// contain runs a step that calls out of the match. A panic in fn is logged and reported, not propagated.
func (m *Match) contain(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("match %s: %s panicked: %v", m.ID(), step, r)
			m.logger.Error().Err(err).Str("step", step).Msg(eris.ToString(err, true))
			m.capture(context.Background(), err)
		}
	}()
	fn()
}

// broadcast delivers to participants that are still connected.
func (m *Match) broadcast(event Event) {
	ids := make([]string, 0, len(m.session.Players))
	for _, p := range m.session.Players {
		if p.Connected {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) > 0 {
		m.notifier.Broadcast(ids, event)
	}
}
