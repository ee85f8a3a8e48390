package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/orders/internal/domain"
)

const (
	defaultBatchSize    = 100
	defaultAfter        = 10 * time.Minute
	defaultMaxRepublish = 3
)

// StaleOrderClaimer отбирает и помечает необработанные заказы старше before.
// Помеченный заказ не отдаётся повторно, пока его отметка не станет
// старше before, и не отдаётся после maxRepublish отметок.
type StaleOrderClaimer interface {
	ClaimStale(ctx context.Context, before time.Time, maxRepublish, limit int) ([]domain.Order, error)
}

// OrderPublisher публикует new_order.
type OrderPublisher interface {
	PublishNewOrder(ctx context.Context, orderID string) error
}

// Leader — блокировка лидерства между экземплярами.
type Leader interface {
	TryLead(ctx context.Context) (bool, error)
	Resign(ctx context.Context) error
}

// Config — конфигурация Reconciler.
type Config struct {
	Orders    StaleOrderClaimer
	Publisher OrderPublisher
	Leader    Leader // nil — без выборов, Tick выполняется всегда
	Logger    *slog.Logger

	// After — сколько заказ должен пролежать необработанным. Это же
	// минимальный интервал между повторными публикациями одного заказа.
	// По умолчанию 10m.
	After time.Duration

	// MaxRepublish — сколько раз один заказ может быть опубликован повторно.
	// По умолчанию 3.
	MaxRepublish int

	// BatchSize — максимум заказов за один тик. По умолчанию 100.
	BatchSize int
}

// Reconciler повторно публикует зависшие заказы.
type Reconciler struct {
	orders       StaleOrderClaimer
	publisher    OrderPublisher
	leader       Leader
	logger       *slog.Logger
	after        time.Duration
	maxRepublish int
	batchSize    int
	now          func() time.Time
}

// New создаёт Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.After <= 0 {
		cfg.After = defaultAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRepublish <= 0 {
		cfg.MaxRepublish = defaultMaxRepublish
	}
	return &Reconciler{
		orders:       cfg.Orders,
		publisher:    cfg.Publisher,
		leader:       cfg.Leader,
		logger:       cfg.Logger.With("component", "reconciler"),
		after:        cfg.After,
		maxRepublish: cfg.MaxRepublish,
		batchSize:    cfg.BatchSize,
		now:          time.Now,
	}
}

// Tick выполняет один проход и возвращает число повторно опубликованных заказов.
//
// Не лидер — ничего не делает. Заказы помечаются до публикации, поэтому
// заказ, публикация которого не удалась, ждёт следующего окна.
// Ошибка публикации одного заказа не останавливает остальные.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	if r.leader != nil {
		leading, err := r.leader.TryLead(ctx)
		if err != nil {
			return 0, fmt.Errorf("try lead: %w", err)
		}
		if !leading {
			r.logger.Debug("not a leader, skipping tick")
			return 0, nil
		}
	}

	cutoff := r.now().Add(-r.after)
	orders, err := r.orders.ClaimStale(ctx, cutoff, r.maxRepublish, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim stale orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	published := 0
	for _, o := range orders {
		if err := r.publisher.PublishNewOrder(ctx, o.ID.String()); err != nil {
			r.logger.Warn("republish new_order failed", "order_id", o.ID, "error", err)
			continue
		}
		published++
	}

	r.logger.Info("reconciler tick completed",
		"stale", len(orders),
		"republished", published,
		"cutoff", cutoff,
	)
	return published, nil
}

// Run запускает Tick по расписанию expr до отмены ctx.
// Тик, не успевший завершиться к следующему срабатыванию, не дублируется.
func (r *Reconciler) Run(ctx context.Context, expr string) error {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reconciler tick failed", "error", err)
		}
	}))

	r.logger.Info("reconciler started", "schedule", expr, "after", r.after)
	c.Start()
	<-ctx.Done()

	// Дожидаемся текущего тика.
	<-c.Stop().Done()

	if r.leader != nil {
		if err := r.leader.Resign(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("resign leadership failed", "error", err)
		}
	}
	r.logger.Info("reconciler stopped")
	return nil
}
