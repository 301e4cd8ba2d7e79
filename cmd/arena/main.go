package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena"
	"github.com/argus-labs/arena/pkg/catalog"
	"github.com/argus-labs/arena/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	defer telemetry.RecoverAndFlush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(telemetry.Options{ServiceName: "arena", ServiceVersion: version})
	if err != nil {
		panic(eris.ToString(err, true))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			tel.Logger.Error().Err(err).Msg("telemetry shutdown error")
		}
	}()

	a, err := arena.New(tel, arena.Options{})
	if err != nil {
		if eris.Is(err, catalog.ErrCatalogLoad) {
			tel.Logger.Fatal().Err(err).Msg("cannot start without a card catalog")
		}
		tel.Logger.Fatal().Err(err).Msg("failed to initialize arena")
	}

	if err := a.Run(ctx); err != nil {
		tel.Logger.Fatal().Err(err).Msg("arena exited with error")
	}
}
