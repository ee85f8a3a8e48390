// Orders Worker — исполняет задачи process_order.
//
// Worker:
//   - забирает задачи из task backend в Redis
//   - помечает заказ обработанным (идемпотентно) и сбрасывает кеш
//   - повторяет задачу до TASK_MAX_RETRIES раз с паузой TASK_COUNTDOWN
//
// С RECONCILE_CRON дополнительно запускает reconciler: лидер по
// pg_try_advisory_lock повторно публикует зависшие заказы.
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
	"github.com/shaiso/orders/internal/processing"
	"github.com/shaiso/orders/internal/reconciler"
	"github.com/shaiso/orders/internal/repo"
	"github.com/shaiso/orders/internal/taskq"
	"github.com/shaiso/orders/internal/telemetry"
)

const reconcileLockKey int64 = 424242

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("orders-worker")
	logger.Info("starting orders-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	cacheRdb, err := cache.Dial(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer cacheRdb.Close()

	tasksRdb, err := cache.Dial(ctx, cfg.RedisURLTasks)
	if err != nil {
		logger.Error("failed to connect to task redis", "error", err)
		os.Exit(1)
	}
	defer tasksRdb.Close()

	orders := repo.NewOrderRepo(pool)

	registry := taskq.NewRegistry()
	processing.NewProcessor(orders, cache.NewOrderCache(cacheRdb, cfg.CacheTTL), cfg.ProcessingDelay, logger).
		Register(registry, taskq.RetryPolicy{MaxRetries: cfg.TaskMaxRetries, Countdown: cfg.TaskCountdown})

	server := taskq.NewServer(tasksRdb, registry, taskq.ServerConfig{
		Queue:       cfg.TaskQueue,
		Concurrency: cfg.TaskConcurrency,
		TimeLimit:   cfg.TaskTimeLimit,
		ResultTTL:   cfg.TaskResultTTL,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		// HTTP: /healthz + /metrics
		ops := &http.Server{Addr: ":" + cfg.WorkerPort, Handler: telemetry.NewOpsMux()}
		return telemetry.Serve(gctx, ops, logger)
	})

	if cfg.ReconcileCron != "" {
		publisher, mqConn, err := mq.Dial(ctx, cfg.RabbitMQURL, mq.PublisherConfig{
			Topology: mq.Topology{Queue: cfg.OrderQueue, MaxRedeliveries: cfg.MaxRedeliveries},
			Confirm:  cfg.PublishConfirm,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer mqConn.Close()

		rec := reconciler.New(reconciler.Config{
			Orders:       orders,
			Publisher:    publisher,
			Leader:       repo.NewAdvisoryLock(pool, reconcileLockKey),
			Logger:       logger,
			After:        cfg.ReconcileAfter,
			MaxRepublish: cfg.ReconcileMaxRepublish,
		})
		g.Go(func() error {
			return rec.Run(gctx, cfg.ReconcileCron)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("orders-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orders-worker stopped")
}
