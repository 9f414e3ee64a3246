package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kingrea/countersign/internal/workflow"
)

// sendClaim reserves the single dispatch slot for one attempt.
type sendClaim struct {
	attempt  int
	envelope workflow.Envelope
	ctx      context.Context
	cancel   context.CancelFunc
}

// claimSend checks the send guard, snapshots the envelope and marks the
// session as processing, all under one lock.
func (e *Engine) claimSend(parent context.Context) (sendClaim, error) {
	if parent == nil {
		parent = context.Background()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsProcessing {
		return sendClaim{}, ErrSendInFlight
	}
	if !e.session.CanSend() {
		return sendClaim{}, ErrNotReady
	}
	env, err := e.session.Envelope()
	if err != nil {
		return sendClaim{}, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	next, ok := workflow.Apply(e.session, workflow.BeginDispatch{})
	if !ok {
		return sendClaim{}, ErrNotReady
	}
	e.session = next

	var ctx context.Context
	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, e.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	e.attempt++
	e.inflight = e.attempt
	e.cancel = cancel
	e.last = &DispatchRecord{Attempt: e.attempt, StartedAt: e.now()}
	e.persistLocked()
	e.logger.Info("Dispatching %q to %d signer(s), attempt %d", env.Document.Name, len(env.Signers), e.attempt)
	return sendClaim{attempt: e.attempt, envelope: env, ctx: ctx, cancel: cancel}, nil
}

// finishSend records the dispatcher outcome unless the attempt was
// abandoned in the meantime.
func (e *Engine) finishSend(claim sendClaim, dispatchErr error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if claim.attempt != e.inflight || !e.session.IsProcessing {
		if dispatchErr == nil {
			e.logger.Warn("Dispatch attempt %d finished after it was canceled; result discarded", claim.attempt)
		}
		return ErrCanceled
	}
	e.cancel = nil
	e.inflight = 0
	if e.last != nil {
		e.last.FinishedAt = e.now()
	}
	if dispatchErr == nil {
		e.session = workflow.Reduce(e.session, workflow.CompleteDispatch{})
		e.logger.Info("Dispatched session %s", e.session.ID)
		e.persistLocked()
		return nil
	}
	reason := dispatchErr.Error()
	if errors.Is(dispatchErr, context.DeadlineExceeded) {
		reason = fmt.Sprintf("dispatch timed out after %s", e.timeout)
	}
	if e.last != nil {
		e.last.Error = reason
	}
	e.session = workflow.Reduce(e.session, workflow.FailDispatch{Reason: reason})
	e.logger.Error("Dispatch failed: %s", reason)
	e.persistLocked()
	return fmt.Errorf("engine: dispatch: %w", dispatchErr)
}

// abandonLocked cancels the outstanding attempt and returns to REVIEW.
func (e *Engine) abandonLocked(reason string) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.inflight = 0
	if e.last != nil {
		e.last.FinishedAt = e.now()
		e.last.Error = reason
		e.last.Canceled = true
	}
	e.session = workflow.Reduce(e.session, workflow.FailDispatch{Reason: reason})
	e.logger.Warn("Dispatch abandoned: %s", reason)
}
