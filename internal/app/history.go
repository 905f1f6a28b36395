package app

import (
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/specialistvlad/passgrid/internal/executor"
)

// historySize bounds how many round outcomes are kept.
const historySize = 64

// Round statuses reported in RoundOutcome.Status.
const (
	StatusCompleted = "completed"
	StatusStale     = "stale"
	StatusFailed    = "failed"
)

// RoundOutcome summarizes how one submitted round ended.
type RoundOutcome struct {
	Run      string        `json:"run"`
	Round    string        `json:"round"`
	Status   string        `json:"status"`
	Cause    string        `json:"cause,omitempty"`
	Applied  int           `json:"applied"`
	Duration time.Duration `json:"duration_ns"`
}

func newHistory() *lru.Cache[string, RoundOutcome] {
	cache, err := lru.New[string, RoundOutcome](historySize)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return cache
}

// record stores the outcome of round, classified by the error runRound
// returned for it.
func (a *App) record(round string, started time.Time, err error) RoundOutcome {
	out := RoundOutcome{
		Run:      a.runID,
		Round:    round,
		Status:   StatusCompleted,
		Applied:  a.editor.Applied(),
		Duration: time.Since(started),
	}
	switch {
	case err == nil:
	case errors.Is(err, executor.ErrStale):
		out.Status = StatusStale
		out.Cause = err.Error()
	default:
		out.Status = StatusFailed
		out.Cause = err.Error()
	}
	a.history.Add(a.runID+"/"+round, out)
	return out
}

// History returns the recorded round outcomes, oldest first.
func (a *App) History() []RoundOutcome {
	return a.history.Values()
}
