// Package ratelimit — ограничение частоты запросов фиксированным окном в Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule — лимит для одной группы запросов.
type Rule struct {
	// Name отделяет счётчики разных эндпоинтов.
	Name string

	// Limit — максимум запросов за окно.
	Limit int

	// Window — длина окна.
	Window time.Duration
}

// PerMinute возвращает правило "limit запросов в минуту".
func PerMinute(name string, limit int) Rule {
	return Rule{Name: name, Limit: limit, Window: time.Minute}
}

// Decision — результат проверки.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter — через сколько откроется следующее окно.
	RetryAfter time.Duration
}

// Limiter считает запросы в Redis.
type Limiter struct {
	rdb    redis.UniversalClient
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Limiter.
func New(rdb redis.UniversalClient, logger *slog.Logger) *Limiter {
	return &Limiter{rdb: rdb, logger: logger, now: time.Now}
}

// Allow учитывает запрос клиента key по правилу rule.
//
// Ошибки Redis не блокируют запрос: лимитер пропускает его и пишет warning.
func (l *Limiter) Allow(ctx context.Context, key string, rule Rule) Decision {
	now := l.now()
	window := now.Truncate(rule.Window)
	redisKey := "ratelimit:" + rule.Name + ":" + key + ":" + strconv.FormatInt(window.Unix(), 10)
	retryAfter := window.Add(rule.Window).Sub(now)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.Expire(ctx, redisKey, rule.Window)
		return nil
	})
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request",
			"rule", rule.Name,
			"error", fmt.Errorf("incr %s: %w", redisKey, err),
		)
		return Decision{Allowed: true, Remaining: rule.Limit}
	}

	count := int(incr.Val())
	remaining := max(rule.Limit-count, 0)
	return Decision{
		Allowed:    count <= rule.Limit,
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}
}
