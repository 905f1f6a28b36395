package simpass

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/hclexpr"
	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/roundfile"
)

// variables are the root names visible to result expressions.
var variables = map[string]struct{}{"doc": {}, "pass": {}, "passes": {}}

// Validate checks every result expression of model before anything runs.
// Unknown variables, unknown functions and references to passes that do not
// exist in the document are errors. A reference to a pass that is not
// ordered before the reader through completion edges is logged as a
// warning: its result may not be applied yet when the reader collects.
func Validate(ctx context.Context, model *roundfile.Model) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	for _, doc := range model.Documents {
		visible := completionAncestors(doc)
		declared := make(map[pass.ID]struct{}, len(doc.Passes))
		for _, p := range doc.Passes {
			declared[p.ID] = struct{}{}
		}

		for _, p := range doc.Passes {
			refs, funcs := hclexpr.Analyze(p.Result)
			for _, name := range funcs {
				if _, ok := functions[name]; !ok {
					errs = append(errs, fmt.Errorf("%s:%s: unknown function %q", doc.Name, p.ID, name))
				}
			}
			for _, ref := range refs {
				if _, ok := variables[ref.RootName()]; !ok {
					errs = append(errs, fmt.Errorf("%s:%s: unknown variable %q", doc.Name, p.ID, hclexpr.TraversalKey(ref)))
					continue
				}
				name, ok := hclexpr.Attribute(ref, "passes")
				if !ok {
					continue
				}
				target := pass.ID(name)
				if _, ok := declared[target]; !ok {
					errs = append(errs, fmt.Errorf("%s:%s: result reads unknown pass %q", doc.Name, p.ID, name))
					continue
				}
				if _, ok := visible[p.ID][target]; !ok {
					logger.Warn("Result reads a pass that is not guaranteed to have applied.", "document", doc.Name, "pass", p.ID, "reads", target)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// completionAncestors returns, for each pass, the passes whose apply is
// guaranteed to happen before it collects. A pass declaring no predecessors
// at all follows the previous one, as the graph builder chains them.
func completionAncestors(doc *roundfile.Document) map[pass.ID]map[pass.ID]struct{} {
	direct := make(map[pass.ID][]pass.ID, len(doc.Passes))
	for i, p := range doc.Passes {
		preds := p.CompletionAfter
		if i > 0 && len(p.StartAfter) == 0 && len(p.CompletionAfter) == 0 {
			preds = []pass.ID{doc.Passes[i-1].ID}
		}
		direct[p.ID] = preds
	}

	out := make(map[pass.ID]map[pass.ID]struct{}, len(doc.Passes))
	for _, p := range doc.Passes {
		seen := make(map[pass.ID]struct{})
		stack := append([]pass.ID(nil), direct[p.ID]...)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[id]; ok || id == p.ID {
				continue
			}
			seen[id] = struct{}{}
			stack = append(stack, direct[id]...)
		}
		out[p.ID] = seen
	}
	return out
}
