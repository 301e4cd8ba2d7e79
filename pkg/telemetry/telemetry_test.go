package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNew_TracingDisabled(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_LOG_FORMAT", "json")
	t.Setenv("OTEL_LOG_LEVEL", "debug")

	tel, err := New(Options{ServiceName: "arena"})
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer)
	assert.Equal(t, zerolog.DebugLevel, tel.Logger.GetLevel())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := map[string]map[string]string{
		"bad log format":  {"OTEL_LOG_FORMAT": "xml"},
		"bad log level":   {"OTEL_LOG_LEVEL": "loud"},
		"bad sample rate": {"OTEL_ENABLED": "true", "OTEL_TRACE_SAMPLE_RATE": "1.5"},
	}
	for name, envs := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range envs {
				t.Setenv(k, v)
			}
			_, err := New(Options{ServiceName: "arena"})
			require.Error(t, err)
		})
	}
}

func TestNew_MissingServiceName(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service name cannot be empty")
}

func TestGetLogger_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	tel := Telemetry{Logger: zerolog.New(&buf), serviceName: "arena"}

	logger := tel.GetLogger("matchmaking")
	logger.Info().Msg("paired")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "arena.matchmaking", line["component"])
	assert.Equal(t, "paired", line["message"])
}

func TestLoadConfig_ResolvesLevelAndFormat(t *testing.T) {
	t.Setenv("OTEL_LOG_LEVEL", "WARN")
	t.Setenv("OTEL_LOG_FORMAT", "Pretty")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, cfg.level)
	assert.Equal(t, LogFormatPretty, cfg.format)
	assert.Equal(t, "dev", cfg.Environment)
}

func TestResourceAttributes(t *testing.T) {
	cfg := Config{Environment: "staging"}
	opts := Options{ServiceName: "arena", ServiceVersion: "1.2.3", Tags: map[string]string{"region": "eu", "fleet": "blue"}}

	got := map[string]string{}
	for _, kv := range resourceAttributes(cfg, opts) {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "arena", got["service.name"])
	assert.Equal(t, "1.2.3", got["service.version"])
	assert.Equal(t, "staging", got["deployment.environment.name"])
	assert.NotEmpty(t, got["service.instance.id"])
	assert.Equal(t, "eu", got["arena.region"])
	assert.Equal(t, "blue", got["arena.fleet"])
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
