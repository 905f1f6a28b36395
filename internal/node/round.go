package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/progress"
	"github.com/specialistvlad/passgrid/internal/version"
)

// ErrCountdownUnderflow is the panic value raised when a round's outstanding
// unit countdown goes below zero.
var ErrCountdownUnderflow = errors.New("outstanding unit countdown went negative")

// ApplyFunc publishes a finished pass's results to the editor. It is called
// at most once per node, after a successful collect on a round that is still
// live.
type ApplyFunc func(ctx context.Context, d pass.Descriptor, document string, token *progress.Token) error

// Round is the bookkeeping shared by every node of one round.
type Round struct {
	Token *progress.Token
	Stamp version.Stamp
	Apply ApplyFunc

	outstanding atomic.Int64
}

// NewRound creates a round with its countdown set to total.
func NewRound(token *progress.Token, stamp version.Stamp, apply ApplyFunc, total int) *Round {
	r := &Round{Token: token, Stamp: stamp, Apply: apply}
	r.outstanding.Store(int64(total))
	return r
}

// ID returns the round identifier carried by the token.
func (r *Round) ID() string {
	return r.Token.ID()
}

// Outstanding returns the number of units that have not finished yet.
func (r *Round) Outstanding() int64 {
	return r.outstanding.Load()
}

// Finish records that one unit finished and returns how many remain. A
// negative result means some unit was counted twice; Finish panics rather
// than report a round that can never complete correctly.
func (r *Round) Finish() int64 {
	left := r.outstanding.Add(-1)
	if left < 0 {
		panic(fmt.Errorf("round %s: %w (%d)", r.ID(), ErrCountdownUnderflow, left))
	}
	return left
}
