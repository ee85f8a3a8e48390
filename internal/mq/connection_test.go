package mq

import (
	"sync/atomic"
	"testing"

	"github.com/shaiso/orders/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	closed atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func newTestConnection() *Connection {
	return &Connection{
		logger:   telemetry.Discard(),
		closedCh: make(chan struct{}),
	}
}

func TestConnection_AdoptInstallsWhileOpen(t *testing.T) {
	c := newTestConnection()
	fresh := &countingCloser{}

	installed := false
	require.NoError(t, c.adopt(fresh, func() { installed = true }))

	assert.True(t, installed)
	assert.Zero(t, fresh.closed.Load())
}

// Соединение, установленное после Close, закрывается и не сохраняется.
func TestConnection_AdoptAfterCloseReleasesFreshConnection(t *testing.T) {
	c := newTestConnection()
	require.NoError(t, c.Close())

	fresh := &countingCloser{}
	installed := false
	err := c.adopt(fresh, func() { installed = true })

	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.False(t, installed)
	assert.Equal(t, int32(1), fresh.closed.Load())
	assert.False(t, c.IsConnected())

	_, err = c.PublishChannel()
	assert.ErrorIs(t, err, ErrNotConnected)
}
