package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/orders/internal/telemetry"
)

// errDeliveriesClosed — брокер закрыл канал доставок.
var errDeliveriesClosed = errors.New("deliveries channel closed")

// Handler — функция обработки доставки.
// nil → Ack, error → Nack(requeue=true).
type Handler func(ctx context.Context, d *Delivery) error

// Channel — часть AMQP канала, нужная consumer'у.
type Channel interface {
	Declarer
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer открывает новое соединение и канал. Closer закрывает соединение.
type Dialer func(ctx context.Context) (Channel, io.Closer, error)

// AMQPDialer возвращает Dialer для брокера по url.
func AMQPDialer(url string) Dialer {
	return func(ctx context.Context) (Channel, io.Closer, error) {
		conn, err := amqp.DialConfig(url, dialConfig(ctx))
		if err != nil {
			return nil, nil, fmt.Errorf("dial amqp: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		return ch, conn, nil
	}
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Topology — очередь и её dead-letter обвязка.
	Topology Topology

	// Prefetch — количество неподтверждённых доставок на канал.
	Prefetch int

	// Tag — consumer tag. Пустой — генерируется брокером.
	Tag string
}

// Consumer потребляет сообщения из очереди.
//
// Каждый вызов Run — отдельная сессия со свежим соединением.
// Восстановлением после сбоев занимается Supervisor.
type Consumer struct {
	dial    Dialer
	handler Handler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(dial Dialer, handler Handler, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Topology.Queue == "" {
		cfg.Topology.Queue = DefaultQueue
	}
	return &Consumer{
		dial:    dial,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("queue", cfg.Topology.Queue),
	}
}

// Run выполняет одну сессию: соединение, объявление очереди, QoS,
// потребление до первого сбоя. Всегда возвращает ошибку: причину сбоя
// или ctx.Err() при остановке.
func (c *Consumer) Run(ctx context.Context) error {
	ch, conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if err := c.cfg.Topology.Declare(ch); err != nil {
		return err
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.cfg.Topology.Queue, // queue
		c.cfg.Tag,            // consumer tag
		false,                // auto-ack (мы ack вручную)
		false,                // exclusive
		false,                // no-local
		false,                // no-wait
		nil,                  // args
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("consumer started", "prefetch", c.cfg.Prefetch)

	return c.processDeliveries(ctx, deliveries, closed)
}

// processDeliveries обрабатывает доставки строго последовательно:
// следующая читается только после ack/nack предыдущей.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return fmt.Errorf("channel closed: %w", amqpErr)
			}
			return errDeliveriesClosed

		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handleDelivery(ctx, NewDelivery(raw))
		}
	}
}

// handleDelivery вызывает обработчик и завершает доставку.
func (c *Consumer) handleDelivery(ctx context.Context, d *Delivery) {
	logger := c.logger.With("message_id", d.MessageID())
	if n := d.DeliveryCount(); n > 0 {
		logger = logger.With("delivery_count", n)
	}
	logger.Debug("received message", "redelivered", d.Redelivered())

	err := c.handler(ctx, d)
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			logger.Error("ack failed", "error", ackErr)
			return
		}
		telemetry.ConsumerMessages.WithLabelValues(telemetry.OutcomeAck).Inc()
		return
	}

	outcome := telemetry.OutcomeNack
	if errors.Is(err, ErrMalformedMessage) {
		outcome = telemetry.OutcomeMalformed
	}
	logger.Warn("handler failed, requeueing", "error", err)

	// Ошибка обработки — возвращаем в очередь.
	// Лимит доставок (если задан) применяет брокер.
	if nackErr := d.Nack(true); nackErr != nil {
		logger.Error("nack failed", "error", nackErr)
		return
	}
	telemetry.ConsumerMessages.WithLabelValues(outcome).Inc()
}
