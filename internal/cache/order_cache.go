// Package cache — Redis-кэш заказов для read-through чтения в API.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shaiso/orders/internal/domain"
)

// ErrCacheMiss — записи в кэше нет.
var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL — время жизни записи по умолчанию.
const DefaultTTL = 300 * time.Second

// OrderCache хранит заказы под ключом order:{id}.
type OrderCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewOrderCache создаёт OrderCache.
func NewOrderCache(rdb redis.UniversalClient, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OrderCache{rdb: rdb, ttl: ttl}
}

// Key возвращает ключ кэша для заказа.
func Key(id uuid.UUID) string {
	return "order:" + id.String()
}

// Get возвращает заказ из кэша или ErrCacheMiss.
func (c *OrderCache) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	data, err := c.rdb.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get cached order: %w", err)
	}

	var order domain.Order
	if err := sonic.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decode cached order: %w", err)
	}
	return &order, nil
}

// Set кладёт заказ в кэш с TTL.
func (c *OrderCache) Set(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(order.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached order: %w", err)
	}
	return nil
}

// Invalidate удаляет запись заказа.
func (c *OrderCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("invalidate cached order: %w", err)
	}
	return nil
}
