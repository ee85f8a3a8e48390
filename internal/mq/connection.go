package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected — соединение с брокером сейчас не установлено.
	ErrNotConnected = errors.New("not connected to RabbitMQ")

	// ErrConnectionClosed — Connection закрыт через Close.
	ErrConnectionClosed = errors.New("connection closed")
)

const (
	heartbeat   = 10 * time.Second
	dialTimeout = 30 * time.Second
)

// SetupFunc вызывается на каждом новом канале: объявление топологии,
// включение confirm mode.
type SetupFunc func(ch *amqp.Channel) error

// Connection — соединение публикатора с автоматическим reconnect.
//
// Особенности:
// - Переподключение при разрыве соединения или закрытии канала брокером
// - SetupFunc выполняется заново после каждого подключения
// - Graceful shutdown
type Connection struct {
	url     string
	setup   SetupFunc
	backoff Backoff
	logger  *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}
}

// NewConnection устанавливает соединение и запускает наблюдение за ним.
func NewConnection(ctx context.Context, url string, setup SetupFunc, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		url:      url,
		setup:    setup,
		backoff:  Backoff{Strategy: BackoffExponential, Delay: time.Second, Max: 30 * time.Second},
		logger:   logger,
		closedCh: make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

// dialConfig — конфигурация AMQP с heartbeat и ctx-aware dial.
func dialConfig(ctx context.Context) amqp.Config {
	return amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			return d.DialContext(ctx, network, addr)
		},
	}
}

// connect устанавливает соединение, открывает канал и выполняет setup.
func (c *Connection) connect(ctx context.Context) error {
	conn, err := amqp.DialConfig(c.url, dialConfig(ctx))
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if c.setup != nil {
		if err := c.setup(ch); err != nil {
			conn.Close()
			return fmt.Errorf("setup channel: %w", err)
		}
	}

	if err := c.adopt(conn, func() {
		c.conn = conn
		c.channel = ch
	}); err != nil {
		return err
	}

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// adopt под c.mu выполняет install, если Close ещё не вызывался.
// Иначе закрывает fresh и возвращает ErrConnectionClosed.
func (c *Connection) adopt(fresh io.Closer, install func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = fresh.Close()
		return ErrConnectionClosed
	}
	install()
	return nil
}

// watch ждёт закрытия соединения или канала и переподключается.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn, ch := c.conn, c.channel
		c.mu.RUnlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		var reason *amqp.Error
		select {
		case <-c.closedCh:
			return
		case reason = <-connClosed:
		case reason = <-chClosed:
		}

		if c.isClosed() {
			return
		}
		if reason != nil {
			c.logger.Warn("connection lost", "error", reason)
		}

		c.mu.Lock()
		c.channel = nil
		c.mu.Unlock()
		conn.Close()

		if !c.reconnect() {
			return
		}
	}
}

// reconnect переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыли во время ожидания.
func (c *Connection) reconnect() bool {
	for attempt := 0; ; attempt++ {
		delay := c.backoff.Next(attempt)
		c.logger.Info("attempting to reconnect", "delay", delay)

		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(context.Background()); err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				return false
			}
			c.logger.Warn("reconnect failed", "error", err)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		return true
	}
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	if c.conn != nil {
		// Закрытие соединения закрывает и канал.
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("close connection: %w", err)
		}
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil
}

// PublishChannel возвращает текущий канал для публикации.
func (c *Connection) PublishChannel() (PublishChannel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.channel == nil {
		return nil, ErrNotConnected
	}
	return c.channel, nil
}
