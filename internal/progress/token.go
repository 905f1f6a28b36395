// Package progress provides the cancellation token shared by every unit of
// one scheduling round.
//
// The scheduler core only ever polls a Token; it never blocks on it. Pass
// implementations that wait on I/O or timers can select on Context().Done()
// instead.
package progress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCanceled is the cause recorded when Cancel is called with a nil cause.
var ErrCanceled = errors.New("round canceled")

// Token is the shared cancellation flag and completion signal of a round.
// The zero value is not usable; create tokens with New.
type Token struct {
	id string

	canceled atomic.Bool
	running  atomic.Bool

	cause     error
	causeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// New returns a running token identified by id. The token's context is
// derived from parent, so canceling parent cancels the token as well.
func New(parent context.Context, id string) *Token {
	ctx, cancel := context.WithCancel(parent)
	t := &Token{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.running.Store(true)

	// A canceled parent is indistinguishable from an explicit Cancel.
	context.AfterFunc(ctx, func() {
		t.Cancel(context.Cause(parent))
	})
	return t
}

// ID returns the round identifier the token was created with.
func (t *Token) ID() string {
	return t.id
}

// Cancel marks the round canceled and records cause as the reason. Only the
// first call has an effect; it reports whether this call canceled the token.
func (t *Token) Cancel(cause error) bool {
	first := false
	t.causeOnce.Do(func() {
		if cause == nil {
			cause = ErrCanceled
		}
		t.cause = cause
		t.canceled.Store(true)
		first = true
	})
	if !first {
		return false
	}
	t.running.Store(false)
	t.cancel()
	t.closeDone()
	return true
}

// IsCanceled reports whether the round was canceled.
func (t *Token) IsCanceled() bool {
	return t.canceled.Load()
}

// Err returns the cancellation cause, or nil while the token is not canceled.
func (t *Token) Err() error {
	if !t.canceled.Load() {
		return nil
	}
	return t.cause
}

// IsRunning reports whether the round neither completed nor was canceled.
func (t *Token) IsRunning() bool {
	return t.running.Load()
}

// StopIfRunning marks the round as completed. It reports false if the round
// had already stopped or was canceled.
func (t *Token) StopIfRunning() bool {
	if t.canceled.Load() || !t.running.CompareAndSwap(true, false) {
		return false
	}
	t.closeDone()
	return true
}

// Completed reports whether the round ran to completion without being
// canceled.
func (t *Token) Completed() bool {
	return !t.running.Load() && !t.canceled.Load()
}

// Done returns a channel that is closed once the round completed or was
// canceled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Context returns a context that is canceled together with the token.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Release frees the resources tied to the token's context. It must be
// called once the round is no longer observed; it does not cancel a token
// that already completed.
func (t *Token) Release() {
	if t.Completed() {
		// Stop the AfterFunc without recording a cancellation.
		t.causeOnce.Do(func() {})
	}
	t.cancel()
}

func (t *Token) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}
