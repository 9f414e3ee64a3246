package dispatch

import (
	"context"

	"github.com/kingrea/countersign/internal/workflow"
)

// Log records the envelope in the journey log and reports success. It is
// the default when no delivery backend is configured.
type Log struct {
	logger Logger
}

// NewLog returns a Log dispatcher. A nil logger discards the entry.
func NewLog(logger Logger) *Log {
	return &Log{logger: logger}
}

// Dispatch implements Dispatcher.
func (l *Log) Dispatch(ctx context.Context, env workflow.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := env.Validate(); err != nil {
		return err
	}
	if l.logger != nil {
		l.logger.Info("Envelope %s: %q to %d signer(s) with %d field(s)",
			env.SessionID, env.Document.Name, len(env.Signers), len(env.Fields))
	}
	return nil
}
