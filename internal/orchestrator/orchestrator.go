// Package orchestrator is the entry point of the scheduler: it turns a batch
// of per-document pass lists into one round, submits what is ready, and can
// tear every round down at once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/dag"
	"github.com/specialistvlad/passgrid/internal/executor"
	"github.com/specialistvlad/passgrid/internal/node"
	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/progress"
	"github.com/specialistvlad/passgrid/internal/scheduler"
	"github.com/specialistvlad/passgrid/internal/version"
	"github.com/specialistvlad/passgrid/internal/workerpool"
)

// ErrClosed is returned by SubmitRound after Close.
var ErrClosed = errors.New("orchestrator closed")

// Document is one entry of a batch: a document and its ordered passes.
// Passes that implement pass.Descriptor keep their declared ordering; plain
// passes are chained in list order.
type Document struct {
	Name   string
	Passes []pass.Pass
}

// Request describes one round.
type Request struct {
	Batch []Document
	// Token is the round's cancellation token; its ID names the round.
	Token *progress.Token
	// Stamp is the version captured when the round was requested.
	Stamp version.Stamp
	// Apply publishes finished passes. Nil applies each pass directly.
	Apply node.ApplyFunc
}

// Orchestrator accepts rounds and owns their dispatch.
type Orchestrator struct {
	dispatcher *scheduler.Dispatcher
	runner     *executor.Runner

	mu     sync.Mutex
	rounds map[*progress.Token]*node.Round
	closed bool
}

// New creates an orchestrator that runs passes on pool and detects stale
// documents with oracle.
func New(pool workerpool.Pool, oracle version.Oracle) *Orchestrator {
	o := &Orchestrator{rounds: make(map[*progress.Token]*node.Round)}
	o.dispatcher = scheduler.New(pool, func(ctx context.Context, n *node.Node) {
		o.runner.Run(ctx, n)
	}, func(ctx context.Context, n *node.Node) {
		o.runner.Skip(ctx, n)
	})
	o.runner = executor.New(o.dispatcher, oracle)
	return o
}

// SubmitRound builds the graph of every document in the batch and submits
// the passes that can start right away. It does not wait for the round;
// callers observe completion through req.Token.Done().
//
// Construction errors, such as a dependency cycle, are returned before
// anything is submitted.
func (o *Orchestrator) SubmitRound(ctx context.Context, req Request) error {
	if req.Token == nil {
		return errors.New("round token is required")
	}
	ctx, logger := ctxlog.With(ctx, "round", req.Token.ID())

	docs := make([]dag.Document, 0, len(req.Batch))
	for _, d := range req.Batch {
		docs = append(docs, dag.Document{Name: d.Name, Descriptors: pass.Wrap(d.Passes)})
	}
	g, err := dag.Build(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to build round %s: %w", req.Token.ID(), err)
	}

	round := node.NewRound(req.Token, req.Stamp, req.Apply, g.Len())
	for _, n := range g.Nodes() {
		n.Attach(round)
	}

	if g.Len() == 0 {
		logger.Debug("Empty round, nothing to schedule.")
		req.Token.StopIfRunning()
		return nil
	}

	if err := o.track(req.Token, round); err != nil {
		return err
	}

	if dropped := g.Dropped(); len(dropped) > 0 {
		logger.Warn("Round has unresolved predecessors.", "dropped_edges", len(dropped))
	}
	logger.Info("Submitting round.", "documents", len(req.Batch), "passes", g.Len(), "ready", len(g.Ready()), "stamp", req.Stamp.String())
	for _, n := range g.Ready() {
		o.dispatcher.Submit(ctx, n)
	}
	return nil
}

func (o *Orchestrator) track(token *progress.Token, round *node.Round) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.rounds[token] = round
	go func() {
		<-token.Done()
		o.mu.Lock()
		delete(o.rounds, token)
		o.mu.Unlock()
	}()
	return nil
}

// CancelAll cancels every round that is still running. No pass starts after
// it returns; a pass that is already collecting finishes its collect but
// does not apply.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	tokens := make([]*progress.Token, 0, len(o.rounds))
	for tok := range o.rounds {
		tokens = append(tokens, tok)
	}
	o.mu.Unlock()

	for _, tok := range tokens {
		tok.Cancel(nil)
	}
	o.dispatcher.CancelAll()
}

// ListInFlight returns the descriptors of passes submitted to the pool that
// have not finished yet.
func (o *Orchestrator) ListInFlight() []pass.Descriptor {
	return o.dispatcher.InFlight()
}

// InFlight returns the same passes as ListInFlight, keyed by document.
func (o *Orchestrator) InFlight() []*node.Node {
	return o.dispatcher.InFlightNodes()
}

// Rounds returns the number of rounds that are still running.
func (o *Orchestrator) Rounds() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.rounds)
}

// Close cancels everything and rejects further rounds. The worker pool is
// not closed; it belongs to the caller.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.CancelAll()
}
