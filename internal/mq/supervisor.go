package mq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/orders/internal/telemetry"
)

// Session — одна попытка потребления. Возвращается при любом сбое.
type Session interface {
	Run(ctx context.Context) error
}

// SessionFunc — адаптер функции к Session.
type SessionFunc func(ctx context.Context) error

// Run вызывает f(ctx).
func (f SessionFunc) Run(ctx context.Context) error { return f(ctx) }

// Supervisor бесконечно пересоздаёт сессию после сбоев.
// Старые соединения не чинятся: каждая попытка начинается с нуля.
type Supervisor struct {
	session Session
	backoff Backoff
	logger  *slog.Logger
}

// NewSupervisor создаёт Supervisor.
func NewSupervisor(session Session, backoff Backoff, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		session: session,
		backoff: backoff,
		logger:  logger,
	}
}

// Run крутит сессии до отмены ctx. Возвращает nil только при отмене.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		started := time.Now()
		err := s.session.Run(ctx)

		if ctx.Err() != nil {
			s.logger.Info("supervisor stopped")
			return nil
		}
		if err == nil {
			err = errors.New("session ended unexpectedly")
		}

		// Долгая успешная сессия — начинаем отсчёт попыток заново.
		if time.Since(started) > s.backoff.resetAfter() {
			attempt = 0
		}
		delay := s.backoff.Next(attempt)
		attempt++

		telemetry.Reconnects.Inc()
		s.logger.Error("consumer session failed, reconnecting",
			"error", err,
			"attempt", attempt,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return nil
		case <-time.After(delay):
		}
	}
}
