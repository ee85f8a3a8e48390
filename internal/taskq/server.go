package taskq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shaiso/orders/internal/telemetry"
)

// maxMovesPerTick ограничивает перенос из delayed/active за один тик.
const maxMovesPerTick = 256

// ServerConfig — конфигурация Server.
type ServerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Concurrency — число параллельных исполнителей. По умолчанию 1.
	Concurrency int

	// PollInterval — пауза при пустой очереди и период обслуживания.
	PollInterval time.Duration

	// TimeLimit — лимит времени одного исполнения.
	TimeLimit time.Duration

	// ResultTTL — сколько хранится запись задачи.
	ResultTTL time.Duration

	// Visibility — через сколько задача из active считается потерянной
	// и возвращается в pending. Должна быть больше TimeLimit.
	Visibility time.Duration
}

// DefaultServerConfig возвращает конфигурацию по умолчанию.
func DefaultServerConfig(queue string) ServerConfig {
	return ServerConfig{
		Queue:        queue,
		Concurrency:  1,
		PollInterval: time.Second,
		TimeLimit:    30 * time.Minute,
		ResultTTL:    defaultResultTTL,
	}
}

// Server исполняет задачи очереди.
type Server struct {
	rdb      redis.UniversalClient
	registry *Registry
	cfg      ServerConfig
	keys     queueKeys
	logger   *slog.Logger
}

// NewServer создаёт Server.
func NewServer(rdb redis.UniversalClient, registry *Registry, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 30 * time.Minute
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	if cfg.Visibility <= cfg.TimeLimit {
		cfg.Visibility = cfg.TimeLimit + time.Minute
	}
	return &Server{
		rdb:      rdb,
		registry: registry,
		cfg:      cfg,
		keys:     keysFor(cfg.Queue),
		logger:   logger.With("queue", cfg.Queue),
	}
}

// Run запускает исполнителей и цикл обслуживания. Блокируется до отмены ctx.
// Начатые исполнения дорабатывают или возвращаются в pending.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("task server started",
		"concurrency", s.cfg.Concurrency,
		"tasks", s.registry.Names(),
	)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.workerLoop(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.maintenanceLoop(ctx)
	}()

	wg.Wait()
	s.logger.Info("task server stopped")
	return nil
}

func (s *Server) workerLoop(ctx context.Context) {
	for ctx.Err() == nil {
		ok, err := s.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("process next task failed", "error", err)
		}
		if ok {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *Server) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Promote(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("promote tasks failed", "error", err)
			}
		}
	}
}

// Promote переносит в pending задачи, у которых истёк countdown,
// и задачи, чья visibility в active истекла. Возвращает число перенесённых.
func (s *Server) Promote(ctx context.Context) (int, error) {
	now := nowMillis()
	moved := 0
	for _, src := range []string{s.keys.delayed, s.keys.active} {
		for i := 0; i < maxMovesPerTick; i++ {
			id, err := moveDueScript.Run(ctx, s.rdb, []string{src, s.keys.pending}, now).Text()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return moved, fmt.Errorf("move due from %s: %w", src, err)
			}
			if src == s.keys.active {
				s.logger.Warn("task visibility expired, requeued", "task_id", id)
			}
			moved++
		}
	}
	return moved, nil
}

// ProcessNext забирает одну задачу и исполняет её.
// Возвращает false, если очередь пуста.
func (s *Server) ProcessNext(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(s.cfg.Visibility).UnixMilli()
	id, err := dequeueScript.Run(ctx, s.rdb, []string{s.keys.pending, s.keys.active}, deadline).Text()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}

	task, err := s.load(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		s.logger.Warn("task record expired, dropping", "task_id", id)
		return true, s.rdb.ZRem(ctx, s.keys.active, id).Err()
	}
	if err != nil {
		return true, err
	}

	return true, s.execute(ctx, task)
}

func (s *Server) execute(ctx context.Context, task *Task) error {
	logger := telemetry.WithTaskID(s.logger, task.ID).With(
		"task", task.Name,
		"attempt", task.Attempt,
	)
	// Запись результата не должна теряться из-за остановки сервера.
	storeCtx := context.WithoutCancel(ctx)

	reg, ok := s.registry.lookup(task.Name)
	if !ok {
		logger.Error("no handler registered")
		return s.apply(storeCtx, logger, task, RetryPolicy{}, Fatal(fmt.Errorf("%w: %s", ErrUnknownTask, task.Name)))
	}

	task.State = StateStarted
	task.StartedAt = nowMillis()
	if err := s.save(storeCtx, task); err != nil {
		return err
	}
	logger.Debug("task started")

	result, interrupted := s.run(ctx, reg.handler, task)
	if interrupted {
		logger.Info("server stopping, task returned to pending")
		return s.requeue(storeCtx, task)
	}
	return s.apply(storeCtx, logger, task, reg.policy, result)
}

// run исполняет обработчик под лимитом времени и перехватывает panic.
// Превышение лимита, как и panic, считается временной ошибкой (Retry).
// interrupted = true, если исполнение прервано остановкой сервера.
func (s *Server) run(ctx context.Context, h Handler, task *Task) (result Result, interrupted bool) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.TimeLimit)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Retry(fmt.Errorf("panic: %v", r))
			}
		}()
		done <- h(runCtx, task)
	}()

	select {
	case res := <-done:
		if res.Kind != KindSuccess && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Retry(ErrTimeLimitExceeded), false
		}
		if res.Kind != KindSuccess && ctx.Err() != nil {
			return res, true
		}
		return res, false
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return Result{}, true
		}
		return Retry(ErrTimeLimitExceeded), false
	}
}

func (s *Server) apply(ctx context.Context, logger *slog.Logger, task *Task, policy RetryPolicy, res Result) error {
	defer func() {
		telemetry.TaskExecutions.WithLabelValues(task.Name, string(task.State)).Inc()
	}()

	if res.Kind == KindSuccess {
		value, err := json.Marshal(res.Value)
		if err != nil {
			res = Fatal(fmt.Errorf("encode result: %w", err))
		}
		task.Result = value
	}

	switch res.Kind {
	case KindSuccess:
		task.State = StateSuccess
		task.Error = ""
		task.CompletedAt = nowMillis()
		logger.Info("task succeeded")
		return s.finish(ctx, task)

	case KindRetry:
		if task.Attempt < policy.MaxRetries {
			task.Attempt++
			task.State = StateRetry
			task.Error = errString(res.Err)
			logger.Warn("task will be retried",
				"error", task.Error,
				"next_attempt", task.Attempt,
				"countdown", policy.Countdown,
			)
			return s.reschedule(ctx, task, policy.Countdown)
		}
		task.State = StateFailure
		task.Error = "max retries exceeded: " + errString(res.Err)
		task.CompletedAt = nowMillis()
		logger.Error("task failed", "error", task.Error)
		return s.finish(ctx, task)

	default:
		task.State = StateFailure
		task.Error = errString(res.Err)
		task.CompletedAt = nowMillis()
		logger.Error("task failed", "error", task.Error)
		return s.finish(ctx, task)
	}
}

func (s *Server) load(ctx context.Context, id string) (*Task, error) {
	data, err := s.rdb.Get(ctx, s.keys.task(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	task, err := decodeTask(data)
	if err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return task, nil
}

func (s *Server) save(ctx context.Context, task *Task) error {
	record, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := s.rdb.Set(ctx, s.keys.task(task.ID), record, s.cfg.ResultTTL).Err(); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Server) reschedule(ctx context.Context, task *Task, countdown time.Duration) error {
	record, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	eta := time.Now().Add(countdown).UnixMilli()
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.keys.task(task.ID), record, s.cfg.ResultTTL)
		p.ZRem(ctx, s.keys.active, task.ID)
		p.ZAdd(ctx, s.keys.delayed, redis.Z{Score: float64(eta), Member: task.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("reschedule task: %w", err)
	}
	return nil
}

func (s *Server) requeue(ctx context.Context, task *Task) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, s.keys.active, task.ID)
		p.RPush(ctx, s.keys.pending, task.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	return nil
}

func (s *Server) finish(ctx context.Context, task *Task) error {
	record, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	keys := []string{s.keys.task(task.ID), s.keys.active}
	if task.Key != "" {
		keys = append(keys, s.keys.unique(task.Name, task.Key))
	}
	if err := finishScript.Run(ctx, s.rdb, keys, task.ID, record, s.cfg.ResultTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
