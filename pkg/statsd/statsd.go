// Package statsd is a helper package that wraps the handful of statsd calls the arena emits.
// It hides the datadog dependency so only this file changes if the metrics backend does.
package statsd

import (
	"sync/atomic"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const namespace = "arena"

var client atomic.Value //nolint:gochecknoglobals // process-wide metrics client

func init() { //nolint:gochecknoinits // default to a no-op client
	client.Store(holder{&ddstatsd.NoOpClient{}})
}

type holder struct {
	ddstatsd.ClientInterface
}

func Client() ddstatsd.ClientInterface {
	return client.Load().(holder).ClientInterface //nolint:errcheck // always a holder
}

// SetClient replaces the process-wide client. Tests use it to install a recorder.
func SetClient(c ddstatsd.ClientInterface) {
	client.Store(holder{c})
}

// EmitTickStat records how long a single match tick took.
func EmitTickStat(start time.Time, stage string) {
	duration := time.Since(start)
	if err := Client().Timing("match.tick", duration, []string{"stage:" + stage}, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit tick stat: %v", err)
	}
}

// EmitMatchEnded counts terminated matches by end reason.
func EmitMatchEnded(reason string) {
	if err := Client().Incr("match.ended", []string{"reason:" + reason}, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit match ended stat: %v", err)
	}
}

// EmitGauge reports a point-in-time value such as active matches or queue depth.
func EmitGauge(name string, value float64) {
	if err := Client().Gauge(name, value, nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit gauge %s: %v", name, err)
	}
}

func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		ddstatsd.WithNamespace(namespace),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	SetClient(newClient)
	return nil
}

// Close flushes and closes the active client, then falls back to a no-op client.
func Close() error {
	c := Client()
	SetClient(&ddstatsd.NoOpClient{})
	if err := c.Close(); err != nil {
		return eris.Wrap(err, "failed to close statsd client")
	}
	return nil
}
