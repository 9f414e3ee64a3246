package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/kingrea/countersign/internal/workflow"
)

// RedisOptions configures a RedisQueue.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	List     string
}

// RedisQueue pushes envelopes onto a Redis list for a downstream worker.
type RedisQueue struct {
	inner *redis.Client
	list  string
}

// NewRedisQueue connects and pings the server before returning.
func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	list := strings.TrimSpace(opts.List)
	if list == "" {
		return nil, errors.New("dispatch: redis list key is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("dispatch: redis ping %s: %w", addr, err)
	}
	return &RedisQueue{inner: client, list: list}, nil
}

// Dispatch implements Dispatcher.
func (q *RedisQueue) Dispatch(ctx context.Context, env workflow.Envelope) error {
	if q == nil || q.inner == nil {
		return errors.New("dispatch: redis client not initialized")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dispatch: encode envelope: %w", err)
	}
	if err := q.inner.LPush(ctx, q.list, payload).Err(); err != nil {
		return fmt.Errorf("dispatch: push envelope: %w", err)
	}
	return nil
}

// Pop removes the oldest queued envelope, waiting up to timeout.
// It returns redis.Nil wrapped when the queue stays empty.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (workflow.Envelope, error) {
	if q == nil || q.inner == nil {
		return workflow.Envelope{}, errors.New("dispatch: redis client not initialized")
	}
	values, err := q.inner.BRPop(ctx, timeout, q.list).Result()
	if err != nil {
		return workflow.Envelope{}, fmt.Errorf("dispatch: pop envelope: %w", err)
	}
	var env workflow.Envelope
	if err := json.Unmarshal([]byte(values[1]), &env); err != nil {
		return workflow.Envelope{}, fmt.Errorf("dispatch: decode envelope: %w", err)
	}
	return env, nil
}

// Len returns the number of queued envelopes.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	if q == nil || q.inner == nil {
		return 0, errors.New("dispatch: redis client not initialized")
	}
	return q.inner.LLen(ctx, q.list).Result()
}

// Close closes the client.
func (q *RedisQueue) Close() error {
	if q == nil || q.inner == nil {
		return nil
	}
	return q.inner.Close()
}
