package arena

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/match"
)

type HistoryBackend string

const (
	HistoryNone   HistoryBackend = "none"
	HistoryRedis  HistoryBackend = "redis"
	HistorySQLite HistoryBackend = "sqlite"
)

func (b HistoryBackend) valid() bool {
	switch b {
	case HistoryNone, HistoryRedis, HistorySQLite:
		return true
	}
	return false
}

// arenaConfig holds the process configuration read from ARENA_* environment variables.
type arenaConfig struct {
	// Port the HTTP and websocket listener binds to.
	Port string `env:"ARENA_PORT" envDefault:"4040"`

	// Path to the JSON card catalog.
	CatalogPath string `env:"ARENA_CATALOG_PATH" envDefault:"cards.json"`

	// Number of match ticks per second.
	TickRate float64 `env:"ARENA_TICK_RATE" envDefault:"10"`

	EnergyRegenInterval time.Duration `env:"ARENA_ENERGY_REGEN_INTERVAL" envDefault:"1s"`

	// How long an ended match stays addressable before it is purged.
	PurgeGrace time.Duration `env:"ARENA_PURGE_GRACE" envDefault:"10s"`

	PersistTimeout time.Duration `env:"ARENA_PERSIST_TIMEOUT" envDefault:"5s"`

	// HMAC secret for player session tokens.
	JWTSecret string `env:"ARENA_JWT_SECRET"`

	JWTIssuer string `env:"ARENA_JWT_ISSUER"`

	HistoryBackend HistoryBackend `env:"ARENA_HISTORY_BACKEND" envDefault:"none"`

	RedisAddress   string `env:"ARENA_REDIS_ADDRESS" envDefault:"localhost:6379"`
	RedisPassword  string `env:"ARENA_REDIS_PASSWORD"`
	RedisNamespace string `env:"ARENA_REDIS_NAMESPACE" envDefault:"arena"`

	SQLitePath string `env:"ARENA_SQLITE_PATH" envDefault:"arena.db"`

	// StatsD agent address. Metrics are discarded when empty.
	StatsdAddress string   `env:"ARENA_STATSD_ADDRESS"`
	StatsdTags    []string `env:"ARENA_STATSD_TAGS" envSeparator:","`
}

func loadConfig() (arenaConfig, error) {
	cfg := arenaConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse arena config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate config")
	}

	return cfg, nil
}

func (cfg *arenaConfig) validate() error {
	if cfg.Port == "" {
		return eris.New("port cannot be empty")
	}
	if cfg.CatalogPath == "" {
		return eris.New("catalog path cannot be empty")
	}
	if cfg.TickRate <= 0 {
		return eris.New("tick rate must be positive")
	}
	if cfg.EnergyRegenInterval <= 0 {
		return eris.New("energy regen interval must be positive")
	}
	if cfg.PurgeGrace < 0 {
		return eris.New("purge grace cannot be negative")
	}
	if cfg.PersistTimeout <= 0 {
		return eris.New("persist timeout must be positive")
	}
	if !cfg.HistoryBackend.valid() {
		return eris.Errorf("invalid history backend: %s (must be 'none', 'redis', or 'sqlite')", cfg.HistoryBackend)
	}
	if cfg.HistoryBackend == HistoryRedis && cfg.RedisAddress == "" {
		return eris.New("redis address cannot be empty when the redis backend is selected")
	}
	if cfg.HistoryBackend == HistorySQLite && cfg.SQLitePath == "" {
		return eris.New("sqlite path cannot be empty when the sqlite backend is selected")
	}
	return nil
}

func (cfg *arenaConfig) applyToOptions(opt *Options) {
	opt.Port = cfg.Port
	opt.CatalogPath = cfg.CatalogPath
	opt.TickRate = cfg.TickRate
	opt.EnergyRegenInterval = cfg.EnergyRegenInterval
	opt.PurgeGrace = cfg.PurgeGrace
	opt.PersistTimeout = cfg.PersistTimeout
	opt.JWTSecret = cfg.JWTSecret
	opt.JWTIssuer = cfg.JWTIssuer
	opt.HistoryBackend = cfg.HistoryBackend
	opt.RedisAddress = cfg.RedisAddress
	opt.RedisPassword = cfg.RedisPassword
	opt.RedisNamespace = cfg.RedisNamespace
	opt.SQLitePath = cfg.SQLitePath
	opt.StatsdAddress = cfg.StatsdAddress
	opt.StatsdTags = cfg.StatsdTags
}

type Options struct {
	Port                string         // Listener port
	CatalogPath         string         // JSON card catalog
	TickRate            float64        // Match ticks per second
	EnergyRegenInterval time.Duration  // Time per regenerated energy point
	PurgeGrace          time.Duration  // Retention of ended matches
	PersistTimeout      time.Duration  // Deadline for writing a match result
	JWTSecret           string         // HMAC secret for session tokens
	JWTIssuer           string         // Expected token issuer, unchecked when empty
	HistoryBackend      HistoryBackend // Match result sink
	RedisAddress        string
	RedisPassword       string
	RedisNamespace      string
	SQLitePath          string
	StatsdAddress       string
	StatsdTags          []string
}

func newDefaultOptions() Options {
	// Set these to invalid values to force users to pass in the correct options.
	return Options{
		Port:           "",
		CatalogPath:    "",
		TickRate:       0,
		JWTSecret:      "",
		HistoryBackend: HistoryNone,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.Port != "" {
		opt.Port = newOpt.Port
	}
	if newOpt.CatalogPath != "" {
		opt.CatalogPath = newOpt.CatalogPath
	}
	if newOpt.TickRate != 0 {
		opt.TickRate = newOpt.TickRate
	}
	if newOpt.EnergyRegenInterval != 0 {
		opt.EnergyRegenInterval = newOpt.EnergyRegenInterval
	}
	if newOpt.PurgeGrace != 0 {
		opt.PurgeGrace = newOpt.PurgeGrace
	}
	if newOpt.PersistTimeout != 0 {
		opt.PersistTimeout = newOpt.PersistTimeout
	}
	if newOpt.JWTSecret != "" {
		opt.JWTSecret = newOpt.JWTSecret
	}
	if newOpt.JWTIssuer != "" {
		opt.JWTIssuer = newOpt.JWTIssuer
	}
	if newOpt.HistoryBackend != "" {
		opt.HistoryBackend = newOpt.HistoryBackend
	}
	if newOpt.RedisAddress != "" {
		opt.RedisAddress = newOpt.RedisAddress
	}
	if newOpt.RedisPassword != "" {
		opt.RedisPassword = newOpt.RedisPassword
	}
	if newOpt.RedisNamespace != "" {
		opt.RedisNamespace = newOpt.RedisNamespace
	}
	if newOpt.SQLitePath != "" {
		opt.SQLitePath = newOpt.SQLitePath
	}
	if newOpt.StatsdAddress != "" {
		opt.StatsdAddress = newOpt.StatsdAddress
	}
	if newOpt.StatsdTags != nil {
		opt.StatsdTags = newOpt.StatsdTags
	}
}

// validate checks that all required options are set and valid.
func (opt *Options) validate() error {
	if opt.Port == "" {
		return eris.New("port cannot be empty")
	}
	if opt.CatalogPath == "" {
		return eris.New("catalog path cannot be empty")
	}
	if opt.TickRate <= 0 {
		return eris.New("tick rate must be positive")
	}
	if opt.JWTSecret == "" {
		return eris.New("jwt secret cannot be empty")
	}
	if !opt.HistoryBackend.valid() {
		return eris.Errorf("invalid history backend: %s", opt.HistoryBackend)
	}
	if _, err := opt.rules(); err != nil {
		return err
	}
	return nil
}

// rules derives the match rules from the configured rates.
func (opt *Options) rules() (match.Rules, error) {
	rules := match.DefaultRules()
	rules.TickInterval = time.Duration(float64(time.Second) / opt.TickRate)
	if opt.EnergyRegenInterval > 0 {
		rules.RegenInterval = opt.EnergyRegenInterval
	}
	if err := rules.Validate(); err != nil {
		return match.Rules{}, eris.Wrap(err, "invalid match rules")
	}
	return rules, nil
}
