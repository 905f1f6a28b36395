// Package pass defines the units of work the scheduler runs.
//
// A Pass is the minimal contract: it collects results off the editor thread
// and later applies them. A Descriptor additionally carries an identifier and
// the ids of the passes it must wait for, which is what lets the scheduler
// build a dependency graph out of a flat list.
package pass

import (
	"context"
	"fmt"

	"github.com/specialistvlad/passgrid/internal/progress"
)

// ID identifies a pass within one document.
type ID string

// Pass is a unit of analysis work that knows nothing about ordering.
type Pass interface {
	// Collect computes the pass's results. Implementations should poll
	// token.IsCanceled() and return early when it flips.
	Collect(ctx context.Context, token *progress.Token) error
	// Apply publishes what Collect produced.
	Apply(ctx context.Context) error
}

// Descriptor is a Pass that declares its place in the dependency graph.
type Descriptor interface {
	Pass
	ID() ID
	// StartPredecessors lists passes that must have started before this one
	// may be submitted.
	StartPredecessors() []ID
	// CompletionPredecessors lists passes whose collect and apply must have
	// finished before this one may be submitted.
	CompletionPredecessors() []ID
}

// autoIDPrefix marks identifiers generated for wrapped plain passes.
const autoIDPrefix = "~"

// AutoID returns the identifier given to the plain pass at position index.
func AutoID(index int) ID {
	return ID(fmt.Sprintf("%s%d", autoIDPrefix, index))
}

// wrapped lifts a plain Pass into a Descriptor with no declared
// predecessors. Such descriptors get chained in list order by the graph
// builder.
type wrapped struct {
	Pass
	id ID
}

func (w *wrapped) ID() ID                       { return w.id }
func (w *wrapped) StartPredecessors() []ID      { return nil }
func (w *wrapped) CompletionPredecessors() []ID { return nil }

func (w *wrapped) String() string {
	return fmt.Sprintf("%s(%T)", w.id, w.Pass)
}

// Unwrap returns the plain pass a wrapped descriptor was built from.
func (w *wrapped) Unwrap() Pass {
	return w.Pass
}

// Wrap returns the passes as descriptors. Values that already implement
// Descriptor are returned unchanged; plain passes get an AutoID based on
// their position.
func Wrap(passes []Pass) []Descriptor {
	out := make([]Descriptor, 0, len(passes))
	for i, p := range passes {
		if d, ok := p.(Descriptor); ok {
			out = append(out, d)
			continue
		}
		out = append(out, &wrapped{Pass: p, id: AutoID(i)})
	}
	return out
}

// Unwrap returns the plain pass behind a descriptor produced by Wrap, or
// d itself otherwise.
func Unwrap(d Descriptor) Pass {
	if w, ok := d.(interface{ Unwrap() Pass }); ok {
		return w.Unwrap()
	}
	return d
}
