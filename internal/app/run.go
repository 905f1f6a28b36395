package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/passgrid/internal/applier"
	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/executor"
	"github.com/specialistvlad/passgrid/internal/node"
	"github.com/specialistvlad/passgrid/internal/orchestrator"
	"github.com/specialistvlad/passgrid/internal/progress"
	"github.com/specialistvlad/passgrid/internal/simpass"
	"github.com/specialistvlad/passgrid/internal/workerpool"
)

// ErrRoundsExhausted is returned when every allowed round went stale.
var ErrRoundsExhausted = errors.New("no round completed before max_rounds was reached")

// Run executes the round file: it submits a round, and resubmits it with a
// fresh version stamp each time an edit makes it stale, until a round
// completes or MaxRounds rounds were tried.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	pool := workerpool.New(ctx, a.config.WorkerCount)
	a.orch = orchestrator.New(pool, a.tracker)
	defer func() {
		a.orch.Close()
		pool.Close()
		a.logger.Debug("Worker pool drained.", "started", pool.Stats().Started, "dropped", pool.Stats().Dropped)
	}()

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	apply, closeApply, err := a.applyHook(ctx)
	if err != nil {
		return err
	}
	defer closeApply()

	stopEdits := a.scheduleEdits()
	defer stopEdits()

	if a.model.PassCount() == 0 {
		a.logger.Warn("No passes found in round files, execution not required.")
		return nil
	}

	a.logger.Info("🚀 Starting rounds...", "documents", len(a.model.Documents), "passes", a.model.PassCount(), "workers", a.config.WorkerCount)
	for a.rounds = 1; a.rounds <= a.config.MaxRounds; a.rounds++ {
		tok := progress.New(ctx, fmt.Sprintf("round-%d", a.rounds))
		started := time.Now()
		err := a.runRound(ctx, tok, apply)
		tok.Release()
		outcome := a.record(tok.ID(), started, err)

		switch {
		case err == nil:
			a.logger.Info("🏁 Round completed.", "round", tok.ID(), "applied", outcome.Applied, "duration", outcome.Duration)
			return nil
		case errors.Is(err, executor.ErrStale):
			a.logger.Warn("Round went stale, resubmitting.", "round", tok.ID(), "cause", err, "duration", outcome.Duration)
		default:
			return err
		}
	}
	a.rounds = a.config.MaxRounds
	return fmt.Errorf("%w (%d)", ErrRoundsExhausted, a.config.MaxRounds)
}

// runRound submits one round and waits for it. It returns the round's
// cancellation cause, or nil when it completed.
func (a *App) runRound(ctx context.Context, tok *progress.Token, apply node.ApplyFunc) error {
	batch := simpass.Build(a.model, a.editor, a.tracker)
	req := orchestrator.Request{
		Batch: batch,
		Token: tok,
		Stamp: a.tracker.Current(),
		Apply: apply,
	}
	if err := a.orch.SubmitRound(ctx, req); err != nil {
		return fmt.Errorf("failed to submit %s: %w", tok.ID(), err)
	}

	select {
	case <-tok.Done():
	case <-ctx.Done():
		a.orch.CancelAll()
		return fmt.Errorf("%s interrupted: %w", tok.ID(), context.Cause(ctx))
	}

	if tok.Completed() {
		return nil
	}
	cause := tok.Err()
	if errors.Is(cause, executor.ErrStale) {
		return cause
	}
	return fmt.Errorf("%s failed: %w", tok.ID(), cause)
}

// applyHook builds the apply chain: a single-writer applier, decorated with
// a publisher when an endpoint is configured.
func (a *App) applyHook(ctx context.Context) (node.ApplyFunc, func(), error) {
	serial := applier.NewSerial(applier.Direct)
	closers := []func(){serial.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	emit := a.emit
	if emit == nil && a.config.PublishURL != "" {
		conn, err := applier.Connect(ctx, applier.ConnectOptions{
			URL:       a.config.PublishURL,
			Namespace: a.config.PublishNamespace,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect publisher: %w", err)
		}
		closers = append(closers, conn.Close)
		emit = conn.Emit
	}
	if emit == nil {
		return serial.Apply, closeAll, nil
	}
	return applier.NewPublisher(emit, serial.Apply).Apply, closeAll, nil
}

// scheduleEdits arms one timer per scripted edit. The returned function
// stops the timers that have not fired.
func (a *App) scheduleEdits() func() {
	timers := make([]*time.Timer, 0, len(a.model.Edits))
	for _, e := range a.model.Edits {
		timers = append(timers, time.AfterFunc(e.After, func() {
			stamp := a.tracker.Touch(e.Document)
			a.logger.Info("✏️ Document edited.", "document", e.Document, "version", stamp.String())
		}))
	}
	return func() {
		for _, t := range timers {
			t.Stop()
		}
	}
}
