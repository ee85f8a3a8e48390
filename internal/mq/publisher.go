package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/orders/internal/telemetry"
)

// ErrPublishNacked — брокер не подтвердил публикацию (confirm mode).
var ErrPublishNacked = errors.New("publish nacked by broker")

// PublishChannel — часть AMQP канала, нужная публикатору.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

// PublisherConfig — конфигурация Publisher.
type PublisherConfig struct {
	// Topology — очередь, в которую публикуются сообщения.
	Topology Topology

	// Confirm — ждать подтверждения брокера на каждую публикацию.
	Confirm bool
}

// Publisher публикует уведомления о новых заказах.
type Publisher struct {
	channel func() (PublishChannel, error)
	cfg     PublisherConfig
	logger  *slog.Logger
}

// Dial подключается к брокеру и возвращает Publisher вместе с его Connection.
// Топология объявляется (и confirm mode включается) на каждом новом канале.
func Dial(ctx context.Context, url string, cfg PublisherConfig, logger *slog.Logger) (*Publisher, *Connection, error) {
	setup := func(ch *amqp.Channel) error {
		if err := cfg.Topology.Declare(ch); err != nil {
			return err
		}
		if cfg.Confirm {
			if err := ch.Confirm(false); err != nil {
				return fmt.Errorf("enable confirm mode: %w", err)
			}
		}
		return nil
	}

	conn, err := NewConnection(ctx, url, setup, logger)
	if err != nil {
		return nil, nil, err
	}
	return NewPublisher(conn.PublishChannel, cfg, logger), conn, nil
}

// NewPublisher создаёт Publisher поверх источника каналов.
func NewPublisher(channel func() (PublishChannel, error), cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if cfg.Topology.Queue == "" {
		cfg.Topology.Queue = DefaultQueue
	}
	return &Publisher{
		channel: channel,
		cfg:     cfg,
		logger:  logger,
	}
}

// PublishNewOrder публикует {"order_id": ...} в очередь через default exchange.
//
// Публикация не транзакционна с записью заказа в БД: ошибка возвращается
// вызывающему, который решает, что с ней делать.
func (p *Publisher) PublishNewOrder(ctx context.Context, orderID string) error {
	err := p.publishNewOrder(ctx, orderID)

	result := "ok"
	switch {
	case errors.Is(err, ErrPublishNacked):
		result = "nacked"
	case err != nil:
		result = "error"
	}
	telemetry.Published.WithLabelValues(result).Inc()

	return err
}

func (p *Publisher) publishNewOrder(ctx context.Context, orderID string) error {
	body, err := EncodeOrderMessage(orderID)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.cfg.Topology.Queue, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	queue := p.cfg.Topology.Queue

	if !p.cfg.Confirm {
		if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
			return fmt.Errorf("publish to %s: %w", queue, err)
		}
		p.logPublished(orderID, msg.MessageId)
		return nil
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	// nil, если канал не в confirm mode
	if confirmation != nil {
		acked, err := confirmation.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait publish confirm: %w", err)
		}
		if !acked {
			return fmt.Errorf("publish order %s: %w", orderID, ErrPublishNacked)
		}
	}

	p.logPublished(orderID, msg.MessageId)
	return nil
}

func (p *Publisher) logPublished(orderID, messageID string) {
	p.logger.Debug("published message",
		"queue", p.cfg.Topology.Queue,
		"order_id", orderID,
		"message_id", messageID,
	)
}
