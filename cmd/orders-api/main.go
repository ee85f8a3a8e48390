// Orders API — HTTP API сервиса заказов.
//
// API:
//   - регистрирует пользователей и выдаёт RS256 JWT
//   - создаёт заказы и публикует new_order в RabbitMQ
//   - отдаёт заказы с кешем в Redis, ограничивает частоту запросов
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/orders/internal/api"
	"github.com/shaiso/orders/internal/auth"
	"github.com/shaiso/orders/internal/cache"
	"github.com/shaiso/orders/internal/config"
	"github.com/shaiso/orders/internal/mq"
	"github.com/shaiso/orders/internal/ratelimit"
	"github.com/shaiso/orders/internal/repo"
	"github.com/shaiso/orders/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("orders-api")
	logger.Info("starting orders-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Redis: кеш заказов и счётчики rate limit
	cacheRdb, err := cache.Dial(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer cacheRdb.Close()

	limiterRdb, err := cache.Dial(ctx, cfg.RedisURLLimiter)
	if err != nil {
		logger.Error("failed to connect to rate limit redis", "error", err)
		os.Exit(1)
	}
	defer limiterRdb.Close()

	tokens, err := auth.LoadTokenManager(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTExpiration)
	if err != nil {
		logger.Error("failed to load jwt keys", "error", err)
		os.Exit(1)
	}

	// RabbitMQ
	publisher, mqConn, err := mq.Dial(ctx, cfg.RabbitMQURL, mq.PublisherConfig{
		Topology: mq.Topology{Queue: cfg.OrderQueue, MaxRedeliveries: cfg.MaxRedeliveries},
		Confirm:  cfg.PublishConfirm,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	handler := api.NewHandler(api.Config{
		Users:     repo.NewUserRepo(pool),
		Orders:    repo.NewOrderRepo(pool),
		Publisher: publisher,
		Cache:     cache.NewOrderCache(cacheRdb, cfg.CacheTTL),
		Limiter:   ratelimit.New(limiterRdb, logger),
		Tokens:    tokens,
		Passwords: auth.NewHasher(auth.DefaultArgon2Params),
		Logger:    logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: api.CORS()(mux),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telemetry.Serve(gctx, server, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("orders-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("orders-api stopped")
}
