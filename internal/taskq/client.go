package taskq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultResultTTL    = 24 * time.Hour
)

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithPollInterval задаёт период опроса result store в Wait.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRecordTTL задаёт TTL записи задачи и ключа уникальности при постановке.
func WithRecordTTL(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.recordTTL = d
		}
	}
}

// Client ставит задачи в очередь и читает их состояние.
type Client struct {
	rdb          redis.UniversalClient
	queue        string
	keys         queueKeys
	pollInterval time.Duration
	recordTTL    time.Duration
}

// NewClient создаёт клиента для очереди queue.
func NewClient(rdb redis.UniversalClient, queue string, opts ...ClientOption) *Client {
	c := &Client{
		rdb:          rdb,
		queue:        queue,
		keys:         keysFor(queue),
		pollInterval: defaultPollInterval,
		recordTTL:    defaultResultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit ставит задачу name с аргументами payload и возвращает её ID.
//
// Если key не пустой и задача с тем же (name, key) ещё не терминальна,
// новая задача не создаётся: возвращается ID существующей.
func (c *Client) Submit(ctx context.Context, name, key string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	task := &Task{
		ID:        uuid.NewString(),
		Name:      name,
		Queue:     c.queue,
		Key:       key,
		Payload:   data,
		State:     StatePending,
		CreatedAt: nowMillis(),
	}
	record, err := encodeTask(task)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	ttl := c.recordTTL.Milliseconds()

	if key == "" {
		_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, c.keys.task(task.ID), record, c.recordTTL)
			p.LPush(ctx, c.keys.pending, task.ID)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("enqueue task: %w", err)
		}
		return task.ID, nil
	}

	id, err := submitUniqueScript.Run(ctx, c.rdb,
		[]string{c.keys.unique(name, key), c.keys.task(task.ID), c.keys.pending},
		task.ID, record, ttl,
	).Text()
	if err != nil {
		return "", fmt.Errorf("enqueue unique task: %w", err)
	}
	return id, nil
}

// Status возвращает текущую запись задачи.
func (c *Client) Status(ctx context.Context, taskID string) (*Task, error) {
	data, err := c.rdb.Get(ctx, c.keys.task(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	task, err := decodeTask(data)
	if err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}

// Wait опрашивает result store, пока задача не станет терминальной
// или не закончится ctx.
//
// SUCCESS → (task, nil). FAILURE → (task, ErrTaskFailed).
// Дедлайн ctx → ErrWaitTimeout; задача при этом не отменяется.
func (c *Client) Wait(ctx context.Context, taskID string) (*Task, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		task, err := c.Status(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, waitErr(ctx)
			}
			return nil, err
		}

		switch task.State {
		case StateSuccess:
			return task, nil
		case StateFailure:
			return task, fmt.Errorf("%w: %s", ErrTaskFailed, task.Error)
		}

		select {
		case <-ctx.Done():
			return nil, waitErr(ctx)
		case <-ticker.C:
		}
	}
}

func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrWaitTimeout
	}
	return ctx.Err()
}

// Pending возвращает число задач, ждущих исполнения.
func (c *Client) Pending(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, c.keys.pending).Result()
}
