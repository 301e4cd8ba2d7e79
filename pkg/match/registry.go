package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/argus-labs/arena/pkg/catalog"
	"github.com/argus-labs/arena/pkg/history"
)

// RegistryOptions configures a Registry. Zero values fall back to defaults.
type RegistryOptions struct {
	Rules          Rules
	Catalog        *catalog.Catalog
	Notifier       Notifier
	Sink           history.Sink
	PurgeGrace     time.Duration
	PersistTimeout time.Duration
	Logger         zerolog.Logger
	Tracer         trace.Tracer
	// CaptureException reports tick failures. Optional.
	CaptureException func(context.Context, error)
	// Now overrides the clock. Optional.
	Now func() time.Time
}

func newDefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		Rules:            DefaultRules(),
		Sink:             history.NopSink{},
		PurgeGrace:       10 * time.Second,
		PersistTimeout:   5 * time.Second,
		Logger:           zerolog.Nop(),
		Tracer:           noop.NewTracerProvider().Tracer("match"),
		CaptureException: func(context.Context, error) {},
		Now:              time.Now,
	}
}

func (opt *RegistryOptions) apply(newOpt RegistryOptions) {
	if newOpt.Rules != (Rules{}) {
		opt.Rules = newOpt.Rules
	}
	if newOpt.Catalog != nil {
		opt.Catalog = newOpt.Catalog
	}
	if newOpt.Notifier != nil {
		opt.Notifier = newOpt.Notifier
	}
	if newOpt.Sink != nil {
		opt.Sink = newOpt.Sink
	}
	if newOpt.PurgeGrace != 0 {
		opt.PurgeGrace = newOpt.PurgeGrace
	}
	if newOpt.PersistTimeout != 0 {
		opt.PersistTimeout = newOpt.PersistTimeout
	}
	// A zero zerolog.Logger has no writer and discards everything, like the default.
	opt.Logger = newOpt.Logger
	if newOpt.Tracer != nil {
		opt.Tracer = newOpt.Tracer
	}
	if newOpt.CaptureException != nil {
		opt.CaptureException = newOpt.CaptureException
	}
	if newOpt.Now != nil {
		opt.Now = newOpt.Now
	}
}

func (opt *RegistryOptions) validate() error {
	if err := opt.Rules.Validate(); err != nil {
		return eris.Wrap(err, "invalid match rules")
	}
	if opt.Catalog == nil {
		return eris.New("catalog cannot be nil")
	}
	if opt.Notifier == nil {
		return eris.New("notifier cannot be nil")
	}
	if opt.PurgeGrace < 0 {
		return eris.New("purge grace cannot be negative")
	}
	if opt.PersistTimeout <= 0 {
		return eris.New("persist timeout must be positive")
	}
	return nil
}

// Registry owns every live match, indexed by match id and by participant.
type Registry struct {
	opts RegistryOptions

	mu       sync.RWMutex
	matches  map[string]*Match
	byPlayer map[string]*Match
	purges   map[string]*time.Timer
	closed   bool
}

func NewRegistry(opts RegistryOptions) (*Registry, error) {
	options := newDefaultRegistryOptions()
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid registry options")
	}
	return &Registry{
		opts:     options,
		matches:  make(map[string]*Match),
		byPlayer: make(map[string]*Match),
		purges:   make(map[string]*time.Timer),
	}, nil
}

// Create starts a new match between two players.
func (r *Registry) Create(players [2]Identity) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, eris.New("registry is shut down")
	}
	if players[0].ID == players[1].ID {
		return nil, eris.Errorf("player %q cannot be matched against themselves", players[0].ID)
	}
	for _, p := range players {
		if existing, ok := r.byPlayer[p.ID]; ok && existing.Stage() == StageActive {
			return nil, eris.Wrapf(ErrAlreadyInMatch, "player %q", p.ID)
		}
	}

	id := uuid.NewString()
	m := r.newMatch(NewSession(id, players, r.opts.Rules, r.opts.Catalog, r.opts.Now()))
	r.matches[id] = m
	for _, p := range players {
		r.byPlayer[p.ID] = m
	}

	m.logger.Info().Str("player1_id", players[0].ID).Str("player2_id", players[1].ID).Msg("match created")
	go m.run()
	return m, nil
}

func (r *Registry) newMatch(s *Session) *Match {
	m := &Match{
		session:        s,
		actions:        newQueue(),
		stage:          newStageManager(),
		rules:          r.opts.Rules,
		notifier:       r.opts.Notifier,
		sink:           r.opts.Sink,
		persistTimeout: r.opts.PersistTimeout,
		logger:         r.opts.Logger.With().Str("match_id", s.ID).Logger(),
		tracer:         r.opts.Tracer,
		capture:        r.opts.CaptureException,
		now:            r.opts.Now,
		onEnded:        r.onEnded,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		pending:        make([]pendingAction, 0, initialQueueCapacity),
	}
	m.tickFn = m.step
	return m
}

// Get returns a match by id, including ended matches still inside their grace window.
func (r *Registry) Get(matchID string) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// MatchOf returns the most recent match of a player, if it has not been purged.
func (r *Registry) MatchOf(playerID string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byPlayer[playerID]
	return m, ok
}

// InActiveMatch reports whether the player is currently playing.
func (r *Registry) InActiveMatch(playerID string) bool {
	m, ok := r.MatchOf(playerID)
	return ok && m.Stage() == StageActive
}

// Submit routes an action to the player's match.
func (r *Registry) Submit(playerID string, action Action) error {
	m, ok := r.MatchOf(playerID)
	if !ok {
		return ErrMatchNotFound
	}
	return m.Submit(playerID, action)
}

// Leave forfeits the player's active match, if any.
func (r *Registry) Leave(playerID string) {
	if m, ok := r.MatchOf(playerID); ok {
		m.Leave(playerID)
	}
}

// Len returns the number of retained matches, ended ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// ActiveCount returns the number of matches still being played.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, m := range r.matches {
		if m.Stage() == StageActive {
			n++
		}
	}
	return n
}

// onEnded runs on the match goroutine after termination and schedules the purge.
func (r *Registry) onEnded(m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	id := m.ID()
	r.purges[id] = time.AfterFunc(r.opts.PurgeGrace, func() { r.purge(id) })
}

// purge removes an ended match once its goroutine has exited.
func (r *Registry) purge(matchID string) {
	r.mu.RLock()
	m, ok := r.matches[matchID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	<-m.Done()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(m)
}

func (r *Registry) removeLocked(m *Match) {
	id := m.ID()
	delete(r.matches, id)
	delete(r.purges, id)
	for _, playerID := range m.PlayerIDs() {
		if r.byPlayer[playerID] == m {
			delete(r.byPlayer, playerID)
		}
	}
	m.stage.Store(StagePurged)
	m.logger.Debug().Msg("match purged")
}

// Shutdown stops every match, waits for their goroutines and empties the registry.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, t := range r.purges {
		t.Stop()
	}
	matches := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		matches = append(matches, m)
	}
	r.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, m := range matches {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Stop()
			}()
		}
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "timed out stopping matches")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range matches {
		r.removeLocked(m)
	}
	return nil
}
