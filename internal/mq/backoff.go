package mq

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// BackoffStrategy — стратегия задержки между попытками.
type BackoffStrategy string

const (
	// BackoffFixed — одна и та же задержка на каждой попытке.
	BackoffFixed BackoffStrategy = "fixed"

	// BackoffExponential — Delay * 2^attempt с потолком Max и jitter.
	BackoffExponential BackoffStrategy = "exponential"
)

// ParseBackoffStrategy парсит стратегию из конфигурации.
func ParseBackoffStrategy(s string) (BackoffStrategy, error) {
	switch BackoffStrategy(s) {
	case BackoffFixed, "":
		return BackoffFixed, nil
	case BackoffExponential:
		return BackoffExponential, nil
	default:
		return "", fmt.Errorf("unknown backoff strategy %q", s)
	}
}

// Backoff вычисляет задержку перед попыткой.
type Backoff struct {
	Strategy BackoffStrategy
	Delay    time.Duration
	Max      time.Duration

	// jitter возвращает число в [0, 1). Подменяется в тестах.
	jitter func() float64
}

// FixedBackoff возвращает фиксированную задержку d.
func FixedBackoff(d time.Duration) Backoff {
	return Backoff{Strategy: BackoffFixed, Delay: d, Max: d}
}

// Next возвращает задержку перед попыткой attempt (с нуля).
func (b Backoff) Next(attempt int) time.Duration {
	delay := b.Delay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	if b.Strategy != BackoffExponential {
		return delay
	}

	maxDelay := b.Max
	if maxDelay < delay {
		maxDelay = delay
	}

	// delay = Delay * 2^attempt, но не больше maxDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			delay = maxDelay
			break
		}
	}

	// Equal jitter: половина фиксирована, половина случайна.
	jitter := b.jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	half := delay / 2
	return half + time.Duration(jitter()*float64(delay-half))
}

// resetAfter — сессия, прожившая дольше, сбрасывает счётчик попыток.
func (b Backoff) resetAfter() time.Duration {
	if b.Max > b.Delay {
		return b.Max
	}
	return b.Delay
}
