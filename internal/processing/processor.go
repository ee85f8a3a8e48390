// Package processing содержит фоновую обработку заказа после создания.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shaiso/orders/internal/domain"
	"github.com/shaiso/orders/internal/repo"
	"github.com/shaiso/orders/internal/taskq"
	"github.com/shaiso/orders/internal/telemetry"
)

// TaskName — имя задачи в task backend.
const TaskName = "process_order"

// Значения по умолчанию для политики ретраев.
const (
	DefaultMaxRetries = 3
	DefaultCountdown  = 60 * time.Second
	DefaultDelay      = 2 * time.Second
)

// ErrInvalidOrderID — order_id не является UUID.
var ErrInvalidOrderID = errors.New("invalid order id")

// OrderStore — доступ к заказам, нужный обработке.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) (bool, error)
}

// CacheInvalidator сбрасывает закэшированный заказ.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// Payload — аргументы задачи process_order.
type Payload struct {
	OrderID string `json:"order_id"`
}

// Processor исполняет process_order.
type Processor struct {
	orders OrderStore
	cache  CacheInvalidator
	delay  time.Duration
	logger *slog.Logger
}

// NewProcessor создаёт Processor. delay — длительность шага обработки.
func NewProcessor(orders OrderStore, cache CacheInvalidator, delay time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		orders: orders,
		cache:  cache,
		delay:  delay,
		logger: logger,
	}
}

// Register регистрирует process_order в реестре задач.
func (p *Processor) Register(reg *taskq.Registry, policy taskq.RetryPolicy) {
	reg.Register(TaskName, p.Handle, policy)
}

// Handle — taskq.Handler: декодирует аргументы и вызывает ProcessOrder.
func (p *Processor) Handle(ctx context.Context, task *taskq.Task) taskq.Result {
	var payload Payload
	if err := sonic.Unmarshal(task.Payload, &payload); err != nil {
		return taskq.Fatal(fmt.Errorf("decode payload: %w", err))
	}
	logger := telemetry.WithTaskID(p.logger, task.ID).With("attempt", task.Attempt)
	return p.process(ctx, logger, payload.OrderID)
}

// ProcessOrder выполняет обработку заказа и возвращает явный исход.
//
// Неизвестный заказ → Fatal, ошибка хранилища → Retry.
// Уже обработанный заказ → Success без повторной работы.
func (p *Processor) ProcessOrder(ctx context.Context, orderID string) taskq.Result {
	return p.process(ctx, p.logger, orderID)
}

func (p *Processor) process(ctx context.Context, logger *slog.Logger, orderID string) taskq.Result {
	logger = telemetry.WithOrderID(logger, orderID)

	id, err := uuid.Parse(orderID)
	if err != nil {
		logger.Error("invalid order id")
		return taskq.Fatal(fmt.Errorf("%w: %q", ErrInvalidOrderID, orderID))
	}

	order, err := p.orders.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		logger.Error("order not found")
		return taskq.Fatal(fmt.Errorf("order %s: %w", orderID, err))
	}
	if err != nil {
		logger.Warn("load order failed", "error", err)
		return taskq.Retry(err)
	}

	if order.IsProcessed() {
		logger.Info("order already processed, skipping")
		return taskq.Success(processedResult(orderID))
	}

	logger.Info("processing order")

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return taskq.Retry(ctx.Err())
	}

	marked, err := p.orders.MarkProcessed(ctx, id)
	if err != nil {
		logger.Warn("mark order processed failed", "error", err)
		return taskq.Retry(err)
	}
	if !marked {
		logger.Info("order processed by a concurrent attempt")
	}

	if err := p.cache.Invalidate(ctx, id); err != nil {
		// Запись в БД уже есть, кэш истечёт по TTL.
		logger.Warn("invalidate cache failed", "error", err)
	}

	logger.Info("order processed")
	return taskq.Success(processedResult(orderID))
}

func processedResult(orderID string) map[string]string {
	return map[string]string{"order_id": orderID, "status": "processed"}
}
