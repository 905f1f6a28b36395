package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/node"
	"github.com/specialistvlad/passgrid/internal/progress"
	"github.com/specialistvlad/passgrid/internal/version"
)

// Dispatch is what the runner needs from the dispatcher.
type Dispatch interface {
	Submit(ctx context.Context, n *node.Node) bool
	CancelRound(r *node.Round) int
}

// Runner executes nodes handed to it by the worker pool.
type Runner struct {
	dispatch Dispatch
	oracle   version.Oracle
}

// New creates a runner that submits released successors through dispatch
// and checks staleness against oracle.
func New(dispatch Dispatch, oracle version.Oracle) *Runner {
	return &Runner{dispatch: dispatch, oracle: oracle}
}

// Run executes n. It is meant to be called exactly once per submitted node,
// from a worker.
func (r *Runner) Run(ctx context.Context, n *node.Node) {
	round := n.Round()
	ctx, logger := ctxlog.With(ctx, "round", round.ID(), "document", n.Document(), "pass", n.Key().Pass)
	defer r.finish(ctx, n)

	if round.Token.IsCanceled() {
		n.SetState(node.Canceled)
		logger.Debug("Skipping pass of a canceled round.")
		return
	}

	n.SetState(node.Running)
	logger.Debug("Pass started.")
	r.release(ctx, n.SubmitSuccessors())

	if err := r.collect(ctx, n); err != nil {
		r.abort(ctx, n, err)
		return
	}
	if err := r.apply(ctx, n); err != nil {
		r.abort(ctx, n, err)
		return
	}

	n.SetState(node.Done)
	r.release(ctx, n.CompletionSuccessors())
	logger.Debug("Pass finished.")
}

// Skip counts down a node whose job was dropped by the pool before Run
// could start, so its round can still finish.
func (r *Runner) Skip(ctx context.Context, n *node.Node) {
	round := n.Round()
	ctx, logger := ctxlog.With(ctx, "round", round.ID(), "document", n.Document(), "pass", n.Key().Pass)
	n.SetState(node.Canceled)
	logger.Debug("Pass dropped before it started.")
	r.finish(ctx, n)
}

func (r *Runner) collect(ctx context.Context, n *node.Node) error {
	round := n.Round()
	if err := r.checkVersion(n); err != nil {
		return err
	}

	// The pass sees one context that ends with either the worker job or the
	// round.
	collectCtx, stop := context.WithCancel(ctx)
	defer stop()
	unregister := context.AfterFunc(round.Token.Context(), stop)
	defer unregister()

	err := protect(n, PhaseCollect, func() error {
		return n.Descriptor().Collect(collectCtx, round.Token)
	})
	if round.Token.IsCanceled() {
		return &canceledError{cause: round.Token.Err()}
	}
	if ctx.Err() != nil {
		return &canceledError{cause: context.Cause(ctx)}
	}
	if err != nil {
		return err
	}
	return r.checkVersion(n)
}

func (r *Runner) apply(ctx context.Context, n *node.Node) error {
	round := n.Round()
	if round.Token.IsCanceled() {
		return &canceledError{cause: round.Token.Err()}
	}
	return protect(n, PhaseApply, func() error {
		if round.Apply == nil {
			return n.Descriptor().Apply(ctx)
		}
		return round.Apply(ctx, n.Descriptor(), n.Document(), round.Token)
	})
}

func (r *Runner) checkVersion(n *node.Node) error {
	if r.oracle == nil {
		return nil
	}
	want := n.Round().Stamp
	if got := r.oracle.CurrentVersion(n.Document()); got != want {
		return fmt.Errorf("%w: %s captured %s, now %s", ErrStale, n.Document(), want, got)
	}
	return nil
}

// release consumes one edge of every successor and submits those that
// became ready.
func (r *Runner) release(ctx context.Context, successors []*node.Node) {
	for _, s := range successors {
		if s.Release() {
			r.dispatch.Submit(ctx, s)
		}
	}
}

// abort records why n stopped and cancels the rest of its round.
func (r *Runner) abort(ctx context.Context, n *node.Node, err error) {
	logger := ctxlog.FromContext(ctx)
	round := n.Round()

	var fault *FaultError
	var canceled *canceledError
	switch {
	case errors.As(err, &fault):
		n.SetState(node.Failed)
		logger.Error("Pass failed, canceling round.", "phase", string(fault.Phase), "error", fault.Err)
	case errors.As(err, &canceled):
		n.SetState(node.Canceled)
		logger.Debug("Pass observed round cancellation.", "cause", canceled.cause)
		// The canceler already owns the cause.
		err = canceled.cause
	default:
		n.SetState(node.Canceled)
		logger.Info("Pass canceled the round.", "cause", err)
	}

	if round.Token.Cancel(err) {
		logger.Info("Round canceled.", "cause", err)
	}
	r.dispatch.CancelRound(round)
}

// finish counts the node down. The last node of a round stops its token.
func (r *Runner) finish(ctx context.Context, n *node.Node) {
	round := n.Round()
	if round.Finish() != 0 {
		return
	}
	if round.Token.StopIfRunning() {
		ctxlog.FromContext(ctx).Info("Round completed.")
	}
}

// protect converts a panic inside fn into a FaultError and wraps returned
// errors the same way.
func protect(n *node.Node, phase Phase, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &FaultError{Node: n.ID(), Phase: phase, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	if err := fn(); err != nil {
		if errors.Is(err, progress.ErrCanceled) || errors.Is(err, context.Canceled) {
			return &canceledError{cause: err}
		}
		return &FaultError{Node: n.ID(), Phase: phase, Err: err}
	}
	return nil
}
