package mq

import (
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveryClosed — доставка уже подтверждена или отклонена.
var ErrDeliveryClosed = errors.New("delivery already terminated")

// Delivery — одна доставка брокера. Ack и Nack вызываются ровно один раз:
// любое повторное завершение возвращает ErrDeliveryClosed.
type Delivery struct {
	raw amqp.Delivery

	mu   sync.Mutex
	done bool
}

// NewDelivery оборачивает AMQP доставку.
func NewDelivery(raw amqp.Delivery) *Delivery {
	return &Delivery{raw: raw}
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.raw.Body
}

// MessageID возвращает AMQP message-id.
func (d *Delivery) MessageID() string {
	return d.raw.MessageId
}

// Redelivered возвращает true, если сообщение доставляется повторно.
func (d *Delivery) Redelivered() bool {
	return d.raw.Redelivered
}

// DeliveryCount возвращает x-delivery-count quorum-очереди (0, если заголовка нет).
func (d *Delivery) DeliveryCount() int64 {
	switch v := d.raw.Headers["x-delivery-count"].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.terminate(func() error { return d.raw.Ack(false) })
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь.
func (d *Delivery) Nack(requeue bool) error {
	return d.terminate(func() error { return d.raw.Nack(false, requeue) })
}

// Terminated возвращает true, если Ack или Nack уже вызывались.
func (d *Delivery) Terminated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *Delivery) terminate(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return ErrDeliveryClosed
	}
	d.done = true
	return fn()
}
