package config

import (
	"testing"
	"time"

	"github.com/shaiso/orders/internal/mq"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TASK_WAIT_TIMEOUT", "")
	t.Setenv("RECONNECT_DELAY", "")
	t.Setenv("AMQP_PREFETCH", "")
	t.Setenv("AMQP_MAX_REDELIVERIES", "")
	t.Setenv("ORDER_QUEUE", "")
	t.Setenv("RECONCILE_MAX_REPUBLISH", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "new_order", cfg.OrderQueue)
	require.Equal(t, 1, cfg.Prefetch)
	require.Equal(t, 60*time.Second, cfg.TaskWaitTimeout)
	require.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	require.Equal(t, 3, cfg.TaskMaxRetries)
	require.Equal(t, 60*time.Second, cfg.TaskCountdown)
	require.Equal(t, 0, cfg.MaxRedeliveries)
	require.Equal(t, 3, cfg.ReconcileMaxRepublish)
}

// По умолчанию new_order — classic очередь без лимита доставок и dead-letter.
func TestLoad_DefaultTopologyRequeuesForever(t *testing.T) {
	t.Setenv("AMQP_MAX_REDELIVERIES", "")
	t.Setenv("ORDER_QUEUE", "")

	cfg, err := Load()
	require.NoError(t, err)

	top := mq.Topology{Queue: cfg.OrderQueue, MaxRedeliveries: cfg.MaxRedeliveries}
	require.False(t, top.DeadLetterEnabled())
	require.Nil(t, top.QueueArgs())
}

func TestLoad_DeadLetterOptIn(t *testing.T) {
	t.Setenv("AMQP_MAX_REDELIVERIES", "20")

	cfg, err := Load()
	require.NoError(t, err)

	top := mq.Topology{Queue: cfg.OrderQueue, MaxRedeliveries: cfg.MaxRedeliveries}
	require.True(t, top.DeadLetterEnabled())
	require.Equal(t, 20, top.QueueArgs()["x-delivery-limit"])
}

func TestLoad_DurationFormats(t *testing.T) {
	t.Setenv("TASK_WAIT_TIMEOUT", "90")
	t.Setenv("RECONNECT_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, cfg.TaskWaitTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("TASK_COUNTDOWN", "soon")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsZeroPrefetch(t *testing.T) {
	t.Setenv("AMQP_PREFETCH", "0")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RedisURLFallback(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("REDIS_URL_TASKS", "")
	t.Setenv("REDIS_URL_RATE_LIMIT", "redis://limits:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "redis://cache:6379/1", cfg.RedisURLTasks)
	require.Equal(t, "redis://limits:6379/0", cfg.RedisURLLimiter)
}
