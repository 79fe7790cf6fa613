// 文件: pkg/config/config_test.go

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresConnections(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MYSQL_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSQL_DSN")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("MYSQL_DSN", "root@tcp(localhost:3306)/ding")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.SettleBuffer)
	assert.Equal(t, 2*time.Second, cfg.TickerCacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 8, cfg.MaxInFlight)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, int64(0), cfg.NodeID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("MYSQL_DSN", "root@tcp(localhost:3306)/ding")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("SETTLE_BUFFER", "1500ms")
	t.Setenv("MAX_IN_FLIGHT", "16")
	t.Setenv("NODE_ID", "7")
	// 非法值回退默认
	t.Setenv("SWEEP_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.SettleBuffer)
	assert.Equal(t, 16, cfg.MaxInFlight)
	assert.Equal(t, int64(7), cfg.NodeID)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
}
