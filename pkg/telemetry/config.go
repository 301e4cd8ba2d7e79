package telemetry

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// LogFormat selects how log lines are written.
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"   // One JSON object per line, for collectors
	LogFormatPretty LogFormat = "pretty" // Colored console output, for local runs
)

// Config is read from OTEL_* variables. Logging is always on; trace export is opt-in.
type Config struct {
	TracingEnabled bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint       string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"` // OTLP gRPC collector
	SampleRate     float64 `env:"OTEL_TRACE_SAMPLE_RATE" envDefault:"1.0"`

	LogLevel  string `env:"OTEL_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"OTEL_LOG_FORMAT" envDefault:"json"`

	SentryDSN string `env:"OTEL_SENTRY_DSN"`
	// Environment names the deployment on spans and Sentry events.
	Environment string `env:"OTEL_SENTRY_ENV" envDefault:"dev"`

	level  zerolog.Level
	format LogFormat
}

func loadConfig() (Config, error) {
	cfg := Config{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse telemetry config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate telemetry config")
	}

	return cfg, nil
}

// validate checks the raw values and resolves the log level and format.
func (cfg *Config) validate() error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		return eris.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", cfg.LogLevel)
	}
	cfg.level = level

	switch format := LogFormat(strings.ToLower(cfg.LogFormat)); format {
	case LogFormatJSON, LogFormatPretty:
		cfg.format = format
	default:
		return eris.Errorf("invalid log format: %s (must be 'json' or 'pretty')", cfg.LogFormat)
	}

	if cfg.TracingEnabled {
		if cfg.Endpoint == "" {
			return eris.New("OTLP endpoint cannot be empty when tracing is enabled")
		}
		if cfg.SampleRate < 0.0 || cfg.SampleRate > 1.0 {
			return eris.New("trace sample rate must be between 0.0 and 1.0")
		}
	}
	return nil
}

type Options struct {
	ServiceName    string            // Reported on spans and prefixed to component loggers
	ServiceVersion string            // Build version, "dev" when unset
	Tags           map[string]string // Added to the trace resource and every Sentry event
}

func newDefaultOptions() Options {
	return Options{ServiceVersion: "dev"}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.ServiceName != "" {
		opt.ServiceName = newOpt.ServiceName
	}
	if newOpt.ServiceVersion != "" {
		opt.ServiceVersion = newOpt.ServiceVersion
	}
	if newOpt.Tags != nil {
		opt.Tags = newOpt.Tags
	}
}

func (opt *Options) validate() error {
	if opt.ServiceName == "" {
		return eris.New("service name cannot be empty")
	}
	return nil
}
