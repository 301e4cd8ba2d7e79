package arena

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/arena/pkg/catalog"
	"github.com/argus-labs/arena/pkg/history"
	"github.com/argus-labs/arena/pkg/match"
	"github.com/argus-labs/arena/pkg/telemetry"
)

const testCards = `[
  {"id": "imp", "name": "Imp", "category": "unit", "cost": 2, "synergyTag": "Fire",
   "baseHealth": 100, "baseDamage": 10, "speed": 1, "range": 1, "attackIntervalMs": 1000}
]`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cards.json")
	require.NoError(t, os.WriteFile(path, []byte(testCards), 0o600))
	return path
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return strconv.Itoa(port)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "4040", cfg.Port)
	assert.Equal(t, "cards.json", cfg.CatalogPath)
	assert.InDelta(t, 10.0, cfg.TickRate, 0)
	assert.Equal(t, time.Second, cfg.EnergyRegenInterval)
	assert.Equal(t, 10*time.Second, cfg.PurgeGrace)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.Equal(t, HistoryNone, cfg.HistoryBackend)
	assert.Equal(t, "arena", cfg.RedisNamespace)
	assert.Equal(t, "arena.db", cfg.SQLitePath)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ARENA_TICK_RATE", "20")
	t.Setenv("ARENA_HISTORY_BACKEND", "redis")
	t.Setenv("ARENA_STATSD_TAGS", "env:test,region:local")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.InDelta(t, 20.0, cfg.TickRate, 0)
	assert.Equal(t, HistoryRedis, cfg.HistoryBackend)
	assert.Equal(t, []string{"env:test", "region:local"}, cfg.StatsdTags)

	var opts Options
	cfg.applyToOptions(&opts)
	opts.JWTSecret = "secret"
	rules, err := opts.rules()
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, rules.TickInterval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"zero tick rate":     {"ARENA_TICK_RATE": "0"},
		"unknown backend":    {"ARENA_HISTORY_BACKEND": "postgres"},
		"negative grace":     {"ARENA_PURGE_GRACE": "-1s"},
		"bad duration":       {"ARENA_ENERGY_REGEN_INTERVAL": "soon"},
		"zero persist limit": {"ARENA_PERSIST_TIMEOUT": "0s"},
	}
	for name, envs := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range envs {
				t.Setenv(k, v)
			}
			_, err := loadConfig()
			require.Error(t, err)
		})
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(telemetry.NewNop(), Options{CatalogPath: writeCatalog(t)})
	require.ErrorContains(t, err, "jwt secret")
}

func TestNew_CatalogFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err := New(telemetry.NewNop(), Options{CatalogPath: missing, JWTSecret: "secret"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, catalog.ErrCatalogLoad))
}

func TestRun_ShutdownEndsMatchesAndPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "arena.db")
	port := freePort(t)
	a, err := New(telemetry.NewNop(), Options{
		Port:           port,
		CatalogPath:    writeCatalog(t),
		JWTSecret:      "secret",
		HistoryBackend: HistorySQLite,
		SQLitePath:     dbPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Catalog().Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + port + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	m, err := a.Registry().Create([2]match.Identity{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("arena did not shut down")
	}
	assert.Equal(t, match.StagePurged, m.Stage())

	sink, err := history.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	defer sink.Close()
	records, err := sink.PlayerHistory(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, m.ID(), records[0].MatchID)
	assert.Equal(t, string(match.ReasonShutdown), records[0].Reason)
	assert.Empty(t, records[0].WinnerID)
}
