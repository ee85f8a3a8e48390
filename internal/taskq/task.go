package taskq

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// State — состояние задачи в result store.
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateRetry   State = "RETRY"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// IsTerminal возвращает true для SUCCESS и FAILURE.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Task — запись задачи, хранится в Redis как JSON.
type Task struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Queue string `json:"queue"`

	// Key — ключ уникальности. Пока задача не терминальна,
	// повторный Submit с тем же (Name, Key) возвращает её ID.
	Key string `json:"key,omitempty"`

	Payload json.RawMessage `json:"payload"`
	State   State           `json:"state"`

	// Attempt — номер ретрая: 0 для первого исполнения, +1 за каждый Retry.
	Attempt int `json:"attempt"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	// Временные метки в миллисекундах Unix.
	CreatedAt   int64 `json:"created_at"`
	StartedAt   int64 `json:"started_at,omitempty"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

func encodeTask(t *Task) ([]byte, error) {
	return json.Marshal(t)
}

func decodeTask(data []byte) (*Task, error) {
	var t Task
	if err := sonic.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// ResultKind — как сервер должен поступить с исполнением.
type ResultKind int

const (
	// KindSuccess — задача выполнена, Value сохраняется как результат.
	KindSuccess ResultKind = iota
	// KindRetry — временная ошибка, задача перепланируется по RetryPolicy.
	KindRetry
	// KindFatal — постоянная ошибка, задача сразу уходит в FAILURE.
	KindFatal
)

func (k ResultKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetry:
		return "retry"
	default:
		return "fatal"
	}
}

// Result — явный исход обработчика.
type Result struct {
	Kind  ResultKind
	Value any
	Err   error
}

// Success возвращает успешный исход с результатом v (кодируется в JSON).
func Success(v any) Result {
	return Result{Kind: KindSuccess, Value: v}
}

// Retry возвращает исход «повторить позже».
func Retry(err error) Result {
	return Result{Kind: KindRetry, Err: err}
}

// Fatal возвращает исход «не повторять».
func Fatal(err error) Result {
	return Result{Kind: KindFatal, Err: err}
}
