package statsd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_RequiresAddress(t *testing.T) {
	require.Error(t, Init("", nil))
}

func TestInit_ReplacesClient(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, Close()) })

	require.NoError(t, Init("127.0.0.1:8125", []string{"env:test"}))
	EmitMatchEnded("forfeit")
	EmitGauge("matches.active", 3)
	require.NoError(t, Close())
}
