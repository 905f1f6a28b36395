// Package scheduler hands ready nodes to the worker pool and keeps track of
// what is in flight so that a round can be torn down at any moment.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/node"
	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/workerpool"
)

// RunFunc executes one node on a worker.
type RunFunc func(ctx context.Context, n *node.Node)

// SkipFunc accounts for a submitted node whose job the pool dropped before
// it started.
type SkipFunc func(ctx context.Context, n *node.Node)

// entry is stored before the job is enqueued, so the handle may briefly be
// nil. Whichever side comes second, Submit or a cancel, cancels the handle.
type entry struct {
	handle   atomic.Pointer[workerpool.Handle]
	canceled atomic.Bool
}

func (e *entry) cancel() {
	e.canceled.Store(true)
	if h := e.handle.Load(); h != nil {
		(*h).Cancel()
	}
}

// Dispatcher submits nodes to a worker pool and tracks their handles.
type Dispatcher struct {
	pool      workerpool.Pool
	run       RunFunc
	skip      SkipFunc
	submitted sync.Map // Key: *node.Node, Value: *entry
}

// New creates a dispatcher that executes nodes with run on pool. skip is
// called instead of run for nodes that were canceled while queued; it may
// be nil.
func New(pool workerpool.Pool, run RunFunc, skip SkipFunc) *Dispatcher {
	return &Dispatcher{pool: pool, run: run, skip: skip}
}

// Submit enqueues n unless its round was canceled or n was already
// submitted. It reports whether the node was enqueued.
func (d *Dispatcher) Submit(ctx context.Context, n *node.Node) bool {
	logger := ctxlog.FromContext(ctx)
	if n.Round().Token.IsCanceled() {
		logger.Debug("Not submitting node of a canceled round.", "node", n.ID())
		return false
	}
	if !n.MarkSubmitted() {
		logger.Warn("Node was already submitted.", "node", n.ID(), "state", n.GetState().String())
		return false
	}

	e := &entry{}
	d.submitted.Store(n, e)
	h := d.pool.Enqueue(n.ID(), func(jobCtx context.Context) {
		defer d.submitted.CompareAndDelete(n, e)
		d.run(jobCtx, n)
	}, func() {
		d.submitted.CompareAndDelete(n, e)
		if d.skip != nil {
			d.skip(context.WithoutCancel(ctx), n)
		}
	})
	e.handle.Store(&h)
	if e.canceled.Load() {
		h.Cancel()
	}
	logger.Debug("Node submitted.", "node", n.ID())
	return true
}

// CancelAll cancels every tracked handle and forgets them. It is safe to
// call repeatedly and concurrently with Submit.
func (d *Dispatcher) CancelAll() int {
	return d.cancelWhere(func(*node.Node) bool { return true })
}

// CancelRound cancels the tracked handles that belong to round r.
func (d *Dispatcher) CancelRound(r *node.Round) int {
	return d.cancelWhere(func(n *node.Node) bool { return n.Round() == r })
}

func (d *Dispatcher) cancelWhere(match func(*node.Node) bool) int {
	canceled := 0
	d.submitted.Range(func(key, value any) bool {
		n := key.(*node.Node)
		if !match(n) {
			return true
		}
		e := value.(*entry)
		e.cancel()
		if d.submitted.CompareAndDelete(n, e) {
			canceled++
		}
		return true
	})
	return canceled
}

// InFlight returns the descriptors of every tracked node.
func (d *Dispatcher) InFlight() []pass.Descriptor {
	var out []pass.Descriptor
	d.submitted.Range(func(key, _ any) bool {
		out = append(out, key.(*node.Node).Descriptor())
		return true
	})
	return out
}

// InFlightNodes returns every tracked node.
func (d *Dispatcher) InFlightNodes() []*node.Node {
	var out []*node.Node
	d.submitted.Range(func(key, _ any) bool {
		out = append(out, key.(*node.Node))
		return true
	})
	return out
}
