package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shaiso/orders/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_RestartsAfterFailures(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := testutil.ToFloat64(telemetry.Reconnects)
	session := SessionFunc(func(ctx context.Context) error {
		if runs.Add(1) < 4 {
			return errors.New("connection reset")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	s := NewSupervisor(session, FixedBackoff(time.Millisecond), telemetry.Discard())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(telemetry.Reconnects)-before)
}

func TestSupervisor_UnexpectedNilIsFailure(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := SessionFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	})
	s := NewSupervisor(session, FixedBackoff(time.Millisecond), telemetry.Discard())
	go s.Run(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSupervisor_StopsDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := SessionFunc(func(context.Context) error { return errors.New("down") })
	s := NewSupervisor(session, FixedBackoff(time.Hour), telemetry.Discard())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor must stop while waiting")
	}
}
