// Package arena wires the card battle server together and runs it.
package arena

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/argus-labs/arena/pkg/auth"
	"github.com/argus-labs/arena/pkg/catalog"
	"github.com/argus-labs/arena/pkg/history"
	"github.com/argus-labs/arena/pkg/match"
	"github.com/argus-labs/arena/pkg/matchmaking"
	"github.com/argus-labs/arena/pkg/server"
	"github.com/argus-labs/arena/pkg/statsd"
	"github.com/argus-labs/arena/pkg/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	pingTimeout     = 5 * time.Second
	gaugeInterval   = 10 * time.Second
)

// Arena owns every long-lived component of the server process.
type Arena struct {
	options Options
	tel     telemetry.Telemetry
	log     zerolog.Logger

	catalog    *catalog.Catalog
	sink       history.Sink
	registry   *match.Registry
	matchmaker *matchmaking.Matchmaker
	hub        *server.Hub
	server     *server.Server
}

// New loads configuration from the environment, overrides it with opts, and builds the arena.
// Catalog failures are returned wrapping catalog.ErrCatalogLoad.
func New(tel telemetry.Telemetry, opts Options) (*Arena, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load arena config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid arena options")
	}
	rules, err := options.rules()
	if err != nil {
		return nil, err
	}

	a := &Arena{options: options, tel: tel, log: tel.GetLogger("arena")}

	a.catalog, err = catalog.Load(options.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.log.Info().Int("cards", a.catalog.Len()).Str("path", options.CatalogPath).Msg("loaded card catalog")

	resolver, err := auth.NewResolver(options.JWTSecret, options.JWTIssuer)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create identity resolver")
	}

	a.sink, err = a.openSink()
	if err != nil {
		return nil, err
	}

	if options.StatsdAddress != "" {
		if err := statsd.Init(options.StatsdAddress, options.StatsdTags); err != nil {
			a.closeSink()
			return nil, eris.Wrap(err, "failed to initialize statsd")
		}
	}

	a.hub = server.NewHub(tel.GetLogger("hub"))

	a.registry, err = match.NewRegistry(match.RegistryOptions{
		Rules:            rules,
		Catalog:          a.catalog,
		Notifier:         a.hub,
		Sink:             a.sink,
		PurgeGrace:       options.PurgeGrace,
		PersistTimeout:   options.PersistTimeout,
		Logger:           tel.GetLogger("match"),
		Tracer:           tel.Tracer,
		CaptureException: tel.CaptureException,
	})
	if err != nil {
		a.closeSink()
		return nil, eris.Wrap(err, "failed to create match registry")
	}

	a.matchmaker = matchmaking.NewMatchmaker(
		matchmaking.NewQueue(), a.registry, a.hub, tel.GetLogger("matchmaking"), tel.Tracer)

	a.server, err = server.New(server.Options{
		Port:       options.Port,
		Resolver:   resolver,
		Matchmaker: a.matchmaker,
		Matches:    a.registry,
		Hub:        a.hub,
		Logger:     tel.GetLogger("server"),
	})
	if err != nil {
		a.closeSink()
		return nil, eris.Wrap(err, "failed to create server")
	}

	return a, nil
}

func (a *Arena) openSink() (history.Sink, error) {
	switch a.options.HistoryBackend {
	case HistoryRedis:
		sink := history.NewRedisSink(history.RedisOptions{
			Addr:     a.options.RedisAddress,
			Password: a.options.RedisPassword,
		}, a.options.RedisNamespace)
		sink.Log = a.tel.GetLogger("history")

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := sink.Ping(ctx); err != nil {
			_ = sink.Close()
			return nil, eris.Wrap(err, "failed to connect to redis history backend")
		}
		a.log.Info().Str("address", a.options.RedisAddress).Msg("persisting match results to redis")
		return sink, nil
	case HistorySQLite:
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		sink, err := history.OpenSQLite(ctx, a.options.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "failed to open sqlite history backend")
		}
		a.log.Info().Str("path", a.options.SQLitePath).Msg("persisting match results to sqlite")
		return sink, nil
	case HistoryNone:
	}
	a.log.Warn().Msg("match results are not persisted")
	return history.NopSink{}, nil
}

// Run serves players until ctx is cancelled, then force-ends every active match and releases resources.
func (a *Arena) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.server.Serve(ctx)
	})
	eg.Go(func() error {
		a.reportGauges(ctx)
		return nil
	})

	err := eg.Wait()
	if err != nil {
		a.tel.CaptureException(ctx, err)
		a.log.Error().Err(err).Msg("arena stopped unexpectedly")
	}
	a.shutdown()
	return err
}

func (a *Arena) reportGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statsd.EmitGauge("match.active", float64(a.registry.ActiveCount()))
			statsd.EmitGauge("server.connections", float64(a.hub.Connections()))
		}
	}
}

func (a *Arena) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("Shutting down arena")

	if err := a.registry.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("match registry shutdown error")
		a.tel.CaptureException(ctx, err)
	}
	a.closeSink()
	if err := statsd.Close(); err != nil {
		a.log.Warn().Err(err).Msg("statsd shutdown error")
	}

	a.log.Info().Msg("Arena shutdown complete")
}

func (a *Arena) closeSink() {
	if a.sink == nil {
		return
	}
	if err := a.sink.Close(); err != nil {
		a.log.Error().Err(err).Msg("history sink shutdown error")
	}
}

// Registry exposes the match registry.
func (a *Arena) Registry() *match.Registry {
	return a.registry
}

// Catalog exposes the loaded card catalog.
func (a *Arena) Catalog() *catalog.Catalog {
	return a.catalog
}
