package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue — имя очереди уведомлений о новых заказах.
const DefaultQueue = "new_order"

// Declarer — часть AMQP канала, нужная для объявления топологии.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Topology описывает очередь new_order и её dead-letter обвязку.
//
// Публикатор и consumer объявляют одну и ту же топологию с одинаковыми
// аргументами, поэтому объявление идемпотентно.
type Topology struct {
	// Queue — имя рабочей очереди.
	Queue string

	// MaxRedeliveries — лимит доставок одного сообщения (x-delivery-limit).
	// 0 — без лимита: classic очередь без dead-letter.
	MaxRedeliveries int
}

// DeadLetterEnabled возвращает true, если брокер должен dead-letter'ить
// сообщения после MaxRedeliveries доставок.
func (t Topology) DeadLetterEnabled() bool {
	return t.MaxRedeliveries > 0
}

// DeadLetterExchange — имя dead-letter exchange.
func (t Topology) DeadLetterExchange() string {
	return t.Queue + ".dlx"
}

// DeadLetterQueue — имя очереди для сообщений, исчерпавших лимит доставок.
func (t Topology) DeadLetterQueue() string {
	return t.Queue + ".dead"
}

// QueueArgs возвращает аргументы объявления рабочей очереди.
func (t Topology) QueueArgs() amqp.Table {
	if !t.DeadLetterEnabled() {
		return nil
	}
	return amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          t.MaxRedeliveries,
		"x-dead-letter-exchange":    t.DeadLetterExchange(),
		"x-dead-letter-routing-key": t.Queue,
	}
}

// Declare объявляет exchange, очереди и binding'и.
func (t Topology) Declare(ch Declarer) error {
	if t.DeadLetterEnabled() {
		if err := ch.ExchangeDeclare(
			t.DeadLetterExchange(), // name
			"direct",               // type
			true,                   // durable
			false,                  // auto-deleted
			false,                  // internal
			false,                  // no-wait
			nil,                    // arguments
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange(), err)
		}

		if _, err := ch.QueueDeclare(t.DeadLetterQueue(), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue(), err)
		}

		if err := ch.QueueBind(t.DeadLetterQueue(), t.Queue, t.DeadLetterExchange(), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", t.DeadLetterQueue(), t.DeadLetterExchange(), err)
		}
	}

	_, err := ch.QueueDeclare(
		t.Queue,       // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		t.QueueArgs(), // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	return nil
}

// Describe возвращает описание топологии для логирования при старте.
func (t Topology) Describe() string {
	var b strings.Builder
	if t.DeadLetterEnabled() {
		fmt.Fprintf(&b, "%s (quorum, delivery-limit=%d) -> %s -> %s",
			t.Queue, t.MaxRedeliveries, t.DeadLetterExchange(), t.DeadLetterQueue())
	} else {
		fmt.Fprintf(&b, "%s (classic, unbounded requeue)", t.Queue)
	}
	return b.String()
}
