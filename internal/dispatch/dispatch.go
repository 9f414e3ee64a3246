// Package dispatch delivers finished signature requests. The engine calls a
// Dispatcher exactly once per send; implementations must honor ctx.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kingrea/countersign/internal/config"
	"github.com/kingrea/countersign/internal/workflow"
)

// ErrRejected wraps a non-2xx answer from the receiving side.
var ErrRejected = errors.New("dispatch: envelope rejected")

// Dispatcher delivers an envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, env workflow.Envelope) error
}

// Func adapts a function to Dispatcher.
type Func func(ctx context.Context, env workflow.Envelope) error

// Dispatch implements Dispatcher.
func (f Func) Dispatch(ctx context.Context, env workflow.Envelope) error {
	return f(ctx, env)
}

// Logger is the subset of the logbook dispatchers write to.
type Logger interface {
	Info(format string, args ...any)
}

// New builds the dispatcher selected by cfg.Dispatch.Mode. The returned
// close function releases any connection and is never nil.
func New(ctx context.Context, cfg config.DispatchConfig, logger Logger) (Dispatcher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Mode {
	case "", "log":
		return NewLog(logger), noop, nil
	case "http":
		d, err := NewHTTP(cfg.Endpoint)
		if err != nil {
			return nil, noop, err
		}
		return d, noop, nil
	case "redis":
		q, err := NewRedisQueue(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			List:     cfg.RedisList,
		})
		if err != nil {
			return nil, noop, err
		}
		return q, q.Close, nil
	default:
		return nil, noop, fmt.Errorf("dispatch: unknown mode %q", cfg.Mode)
	}
}
