package pass

import (
	"context"

	"github.com/specialistvlad/passgrid/internal/progress"
)

// Func is a Descriptor assembled from plain values and functions. Nil
// functions are treated as no-ops.
type Func struct {
	Name            ID
	StartAfter      []ID
	CompletionAfter []ID
	CollectFn       func(ctx context.Context, token *progress.Token) error
	ApplyFn         func(ctx context.Context) error
}

var _ Descriptor = (*Func)(nil)

func (f *Func) ID() ID                       { return f.Name }
func (f *Func) StartPredecessors() []ID      { return f.StartAfter }
func (f *Func) CompletionPredecessors() []ID { return f.CompletionAfter }

func (f *Func) Collect(ctx context.Context, token *progress.Token) error {
	if f.CollectFn == nil {
		return nil
	}
	return f.CollectFn(ctx, token)
}

func (f *Func) Apply(ctx context.Context) error {
	if f.ApplyFn == nil {
		return nil
	}
	return f.ApplyFn(ctx)
}

func (f *Func) String() string {
	return string(f.Name)
}
