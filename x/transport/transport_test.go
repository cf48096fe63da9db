package transport

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniity/sedap-express/metrics"
)

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	c := Config{Address: "localhost:50000", PollInterval: 5 * time.Second}.WithDefaults()
	assert.Equal(t, DefaultReconnectDelay, c.ReconnectDelay)
	assert.Equal(t, 5*time.Second, c.PollInterval)
	assert.Equal(t, 1<<20, c.MaxMessageSize)
	assert.Equal(t, 64, c.MaxConnections)
	assert.Zero(t, c.ReadTimeout)
	require.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing address", Config{}},
		{"negative read timeout", Config{Address: ":1", ReadTimeout: -time.Second}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, tc.cfg.Validate())
		})
	}
}

func TestStateHolder(t *testing.T) {
	t.Parallel()

	var h StateHolder
	assert.Equal(t, StateDisconnected, h.Load())
	assert.Equal(t, StateDisconnected, h.Store(StateConnecting))
	assert.Equal(t, StateConnecting, h.Store(StateConnected))
	assert.Equal(t, "connected", h.Load().String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestSleep(t *testing.T) {
	t.Parallel()

	assert.True(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetricsWith(metrics.NewComponentRegistryWith(reg, metrics.Namespace, "tcp"))

	m.RecordConnection("accepted")
	m.RecordConnection("accepted")
	m.RecordConnection("closed")
	m.RecordState(StateConnected)
	m.RecordMessageSent("TEXT", 64)
	m.RecordError("io", "read")

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionsActive), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.State), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("TEXT", "sent")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("io", "read")), 0)
}
