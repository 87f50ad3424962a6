package resguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resguard/config"
	"resguard/stress"
)

func TestNewWithDefaults(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.NotNil(t, c.PrometheusRegistry())
	assert.Equal(t, stress.LevelNormal.String(), c.CurrentStatus()["stress_level"])
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitoring.HistorySize = -1

	_, err := New(cfg)
	require.Error(t, err)
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitoring.IntervalSeconds = 1

	c, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx)) // double start is a no-op

	c.Stop()
	c.Stop() // idempotent
}

func TestStatusSurfaceShape(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	status := c.CurrentStatus()
	for _, key := range []string{"stress_level", "stress_score", "breaker_active", "cpu_percent", "memory_percent"} {
		assert.Contains(t, status, key)
	}

	metrics := c.Metrics()
	for _, key := range []string{"optimizer", "stress", "detector"} {
		assert.Contains(t, metrics, key)
	}

	facts := c.SystemFacts()
	assert.NotZero(t, facts.PID)
}

func TestGrowthReportFromController(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	report := c.GrowthReport()
	assert.False(t, report.Abnormal, "fresh process must not report a leak")
	assert.NotZero(t, report.Records)
}

func TestManagementOperations(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	result, err := c.Optimize("normal")
	require.NoError(t, err)
	assert.True(t, result.Collection.Ran)

	_, err = c.Optimize("extreme")
	require.Error(t, err)

	limit := c.SetMemoryLimit(-5)
	assert.False(t, limit.Applied)

	require.NoError(t, c.RegisterBackgroundTask("reports", func() error { return nil }, func() error { return nil }, false))
	assert.NoError(t, c.RequestGate("/api/anything"))
}

func TestUsageHistoryFromController(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitoring.IntervalSeconds = 1

	c, err := New(cfg)
	require.NoError(t, err)

	// No samples yet: the history window is empty, never over-returned.
	assert.Empty(t, c.UsageHistory(5))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	time.Sleep(1500 * time.Millisecond)
	assert.NotEmpty(t, c.UsageHistory(5))
}
