// Orders Consumer — потребитель очереди new_order.
//
// Consumer:
//   - читает new_order с ручным ack под Reconnect Supervisor'ом
//   - на каждое сообщение ставит задачу process_order и ждёт результат
//   - ack при успехе, nack с requeue при ошибке или таймауте
//
// Consumers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/orders/internal/cache"
	"github.com/shaiso/orders/internal/config"
	"github.com/shaiso/orders/internal/mq"
	"github.com/shaiso/orders/internal/taskq"
	"github.com/shaiso/orders/internal/telemetry"
	"github.com/shaiso/orders/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("orders-consumer")
	logger.Info("starting orders-consumer")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	strategy, err := mq.ParseBackoffStrategy(cfg.ReconnectBackoff)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Task backend
	tasksRdb, err := cache.Dial(ctx, cfg.RedisURLTasks)
	if err != nil {
		logger.Error("failed to connect to task redis", "error", err)
		os.Exit(1)
	}
	defer tasksRdb.Close()

	w := worker.New(worker.Config{
		Dialer:      mq.AMQPDialer(cfg.RabbitMQURL),
		Tasks:       taskq.NewClient(tasksRdb, cfg.TaskQueue, taskq.WithRecordTTL(cfg.TaskResultTTL)),
		Topology:    mq.Topology{Queue: cfg.OrderQueue, MaxRedeliveries: cfg.MaxRedeliveries},
		Prefetch:    cfg.Prefetch,
		WaitTimeout: cfg.TaskWaitTimeout,
		Backoff: mq.Backoff{
			Strategy: strategy,
			Delay:    cfg.ReconnectDelay,
			Max:      cfg.ReconnectMax,
		},
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		// HTTP: /healthz + /metrics
		server := &http.Server{Addr: ":" + cfg.ConsumerPort, Handler: telemetry.NewOpsMux()}
		return telemetry.Serve(gctx, server, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("orders-consumer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orders-consumer stopped")
}
