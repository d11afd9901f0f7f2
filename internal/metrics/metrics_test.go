package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		SessionsStarted,
		SessionsClosed,
		StopRejections,
		SessionElapsedSeconds,
		RetentionEvictions,
		RetentionErrors,
		SweepRuns,
		SweepSessions,
		SweepDuration,
		SweepLastSuccess,
		CatalogLookups,
		CatalogReloads,
		HTTPRequests,
		HTTPRequestDuration,
		RateLimited,
	}

	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 4)
		c.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterMetrics(t *testing.T) {
	tests := []struct {
		name   string
		metric *prometheus.CounterVec
		labels prometheus.Labels
	}{
		{"sessions closed", SessionsClosed, prometheus.Labels{"reason": "test-stopped"}},
		{"sweep sessions", SweepSessions, prometheus.Labels{"outcome": "test-closed"}},
		{"catalog lookups", CatalogLookups, prometheus.Labels{"kind": "book", "result": "test-hit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.metric.With(tt.labels)
			before := testutil.ToFloat64(c)
			c.Add(3)
			assert.Equal(t, before+3, testutil.ToFloat64(c))
		})
	}
}

func TestBool(t *testing.T) {
	assert.Equal(t, "true", Bool(true))
	assert.Equal(t, "false", Bool(false))
}
