package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/orders/internal/mq"
)

// Config — конфигурация Worker.
type Config struct {
	// Dialer открывает соединение для каждой сессии.
	Dialer mq.Dialer

	// Tasks — клиент task backend.
	Tasks TaskSubmitter

	// Topology — очередь new_order.
	Topology mq.Topology

	// Prefetch — QoS канала (default: 1).
	Prefetch int

	// WaitTimeout — ожидание результата задачи (default: 60s).
	WaitTimeout time.Duration

	// Backoff — задержка между сессиями (default: fixed 5s).
	Backoff mq.Backoff

	// Logger
	Logger *slog.Logger
}

// Worker — consumer очереди new_order под Reconnect Supervisor'ом.
type Worker struct {
	supervisor *mq.Supervisor
	topology   mq.Topology
	logger     *slog.Logger
}

// New собирает Dispatcher, Consumer и Supervisor.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := cfg.Backoff
	if backoff.Delay <= 0 {
		backoff = mq.FixedBackoff(5 * time.Second)
	}

	dispatcher := NewDispatcher(cfg.Tasks, cfg.WaitTimeout, logger)
	consumer := mq.NewConsumer(cfg.Dialer, dispatcher.HandleDelivery, mq.ConsumerConfig{
		Topology: cfg.Topology,
		Prefetch: cfg.Prefetch,
	}, logger)

	return &Worker{
		supervisor: mq.NewSupervisor(consumer, backoff, logger),
		topology:   cfg.Topology,
		logger:     logger,
	}
}

// Run потребляет new_order до отмены ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting order consumer", "topology", w.topology.Describe())
	return w.supervisor.Run(ctx)
}
