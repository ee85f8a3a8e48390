package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/orders/internal/mq"
	"github.com/shaiso/orders/internal/processing"
	"github.com/shaiso/orders/internal/taskq"
	"github.com/shaiso/orders/internal/telemetry"
)

// DefaultWaitTimeout — сколько consumer ждёт результат задачи.
const DefaultWaitTimeout = 60 * time.Second

// maxLoggedBody ограничивает тело битого сообщения в логах.
const maxLoggedBody = 256

// TaskSubmitter — клиент task backend.
type TaskSubmitter interface {
	Submit(ctx context.Context, name, key string, payload any) (string, error)
	Wait(ctx context.Context, taskID string) (*taskq.Task, error)
}

// Dispatcher передаёт доставки new_order в task backend.
type Dispatcher struct {
	tasks       TaskSubmitter
	waitTimeout time.Duration
	logger      *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(tasks TaskSubmitter, waitTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &Dispatcher{
		tasks:       tasks,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// HandleDelivery — mq.Handler. nil означает ack, ошибка — nack с requeue.
func (d *Dispatcher) HandleDelivery(ctx context.Context, delivery *mq.Delivery) error {
	msg, err := mq.DecodeOrderMessage(delivery.Body())
	if err != nil {
		// Задача не ставится: без order_id её нечем параметризовать.
		d.logger.Error("malformed message",
			"message_id", delivery.MessageID(),
			"error", err,
			"body", truncate(delivery.Body(), maxLoggedBody),
		)
		return err
	}

	logger := telemetry.WithOrderID(d.logger, msg.OrderID)

	taskID, err := d.tasks.Submit(ctx, processing.TaskName, msg.OrderID, processing.Payload{OrderID: msg.OrderID})
	if err != nil {
		logger.Error("submit task failed", "error", err)
		return fmt.Errorf("submit task: %w", err)
	}
	logger = telemetry.WithTaskID(logger, taskID)
	logger.Debug("task dispatched", "redelivered", delivery.Redelivered())

	waitCtx, cancel := context.WithTimeout(ctx, d.waitTimeout)
	defer cancel()

	started := time.Now()
	task, err := d.tasks.Wait(waitCtx, taskID)
	telemetry.TaskWaitSeconds.Observe(time.Since(started).Seconds())

	if err != nil {
		logger.Warn("task did not succeed", "error", err)
		return fmt.Errorf("task %s: %w", taskID, err)
	}

	logger.Info("order task succeeded", "result", string(task.Result))
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
