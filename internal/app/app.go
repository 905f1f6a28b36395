package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/specialistvlad/passgrid/internal/applier"
	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/orchestrator"
	"github.com/specialistvlad/passgrid/internal/roundfile"
	"github.com/specialistvlad/passgrid/internal/simpass"
	"github.com/specialistvlad/passgrid/internal/version"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx    context.Context
	outW   io.Writer
	logger *slog.Logger
	config *Config
	model  *roundfile.Model

	tracker *version.Tracker
	editor  *simpass.Editor
	emit    applier.Emitter

	orch       *orchestrator.Orchestrator
	httpServer *http.Server

	runID   string
	rounds  int
	history *lru.Cache[string, RoundOutcome]
}

// Option customizes an App.
type Option func(*App)

// WithEmitter publishes applied passes through emit instead of dialing
// Config.PublishURL.
func WithEmitter(emit applier.Emitter) Option {
	return func(a *App) { a.emit = emit }
}

// NewApp is the constructor for the main application. It loads the round
// files named by cfg and lets their scheduler block override the worker
// count and round limit.
//
// A round file that fails to load or validate is a fatal startup error and
// panics.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) *App {
	runID := uuid.NewString()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW).With("run", runID)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := roundfile.NewLoader().Load(ctx, cfg.RoundPath)
	if err != nil {
		panic(fmt.Errorf("failed to load round files: %w", err))
	}
	if err := simpass.Validate(ctx, model); err != nil {
		panic(fmt.Errorf("invalid result expressions: %w", err))
	}

	effective := *cfg
	if model.Scheduler.Workers > 0 {
		effective.WorkerCount = model.Scheduler.Workers
	}
	if model.Scheduler.MaxRounds > 0 {
		effective.MaxRounds = model.Scheduler.MaxRounds
	}
	logger.Debug("Round files loaded.", "documents", len(model.Documents), "passes", model.PassCount(), "workers", effective.WorkerCount, "max_rounds", effective.MaxRounds)

	a := &App{
		ctx:     ctx,
		outW:    outW,
		logger:  logger,
		config:  &effective,
		model:   model,
		tracker: version.NewTracker(),
		editor:  simpass.NewEditor(),
		runID:   runID,
		history: newHistory(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Editor returns the results applied so far. This is primarily for testing.
func (a *App) Editor() *simpass.Editor {
	return a.editor
}

// Tracker returns the document version tracker.
func (a *App) Tracker() *version.Tracker {
	return a.tracker
}

// RunID identifies this App in logs and round outcomes.
func (a *App) RunID() string {
	return a.runID
}

// Rounds returns how many rounds the last Run submitted.
func (a *App) Rounds() int {
	return a.rounds
}

// Config returns the effective configuration, after round file overrides.
func (a *App) Config() Config {
	return *a.config
}
