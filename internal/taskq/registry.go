package taskq

import (
	"context"
	"sync"
	"time"
)

// Handler исполняет задачу и возвращает явный исход.
// ctx отменяется по истечении лимита времени исполнения.
type Handler func(ctx context.Context, task *Task) Result

// RetryPolicy — правила повторов для задачи.
type RetryPolicy struct {
	// MaxRetries — сколько раз задачу можно повторить после первой попытки.
	MaxRetries int

	// Countdown — фиксированная пауза перед повтором.
	Countdown time.Duration
}

type registration struct {
	handler Handler
	policy  RetryPolicy
}

// Registry хранит обработчики по имени задачи.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register регистрирует обработчик. Повторная регистрация заменяет предыдущую.
func (r *Registry) Register(name string, h Handler, policy RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = registration{handler: h, policy: policy}
}

// Names возвращает имена зарегистрированных задач.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

func (r *Registry) lookup(name string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[name]
	return reg, ok
}
