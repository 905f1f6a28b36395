// Package simpass turns round file blocks into runnable passes. A simulated
// pass spends its collect_time "working" while polling for cancellation,
// then evaluates its result expression against the document's already
// applied results.
package simpass

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/hclexpr"
	"github.com/specialistvlad/passgrid/internal/orchestrator"
	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/progress"
	"github.com/specialistvlad/passgrid/internal/roundfile"
	"github.com/specialistvlad/passgrid/internal/version"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// pollInterval is how often a working pass checks its token.
const pollInterval = 2 * time.Millisecond

// Pass is a pass.Descriptor driven by a round file `pass` block.
type Pass struct {
	document string
	def      *roundfile.Pass
	editor   *Editor
	oracle   version.Oracle

	mu     sync.Mutex
	result cty.Value
}

var _ pass.Descriptor = (*Pass)(nil)

// New creates the simulated pass described by def for document. Results are
// published to editor; oracle supplies the version visible to expressions
// and may be nil.
func New(document string, def *roundfile.Pass, editor *Editor, oracle version.Oracle) *Pass {
	return &Pass{
		document: document,
		def:      def,
		editor:   editor,
		oracle:   oracle,
		result:   cty.NullVal(cty.DynamicPseudoType),
	}
}

// Build creates a fresh batch of simulated passes for every document of
// model.
func Build(model *roundfile.Model, editor *Editor, oracle version.Oracle) []orchestrator.Document {
	batch := make([]orchestrator.Document, 0, len(model.Documents))
	for _, d := range model.Documents {
		passes := make([]pass.Pass, 0, len(d.Passes))
		for _, def := range d.Passes {
			passes = append(passes, New(d.Name, def, editor, oracle))
		}
		batch = append(batch, orchestrator.Document{Name: d.Name, Passes: passes})
	}
	return batch
}

func (p *Pass) ID() pass.ID                       { return p.def.ID }
func (p *Pass) StartPredecessors() []pass.ID      { return p.def.StartAfter }
func (p *Pass) CompletionPredecessors() []pass.ID { return p.def.CompletionAfter }

// Document returns the document the pass analyzes.
func (p *Pass) Document() string {
	return p.document
}

// Collect simulates the analysis and evaluates the result expression.
func (p *Pass) Collect(ctx context.Context, token *progress.Token) error {
	if err := p.work(ctx, token); err != nil {
		return err
	}
	if p.def.Fail != "" {
		return errors.New(p.def.Fail)
	}

	v, err := p.evaluate()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.result = v
	p.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Pass result collected.", "result", hclexpr.Render(v))
	return nil
}

// Apply publishes the collected result to the editor.
func (p *Pass) Apply(context.Context) error {
	p.editor.Publish(p.document, p.def.ID, p.Result())
	return nil
}

// Result returns the value produced by the last Collect.
func (p *Pass) Result() cty.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *Pass) String() string {
	return p.document + ":" + string(p.def.ID)
}

func (p *Pass) work(ctx context.Context, token *progress.Token) error {
	if token.IsCanceled() {
		return progress.ErrCanceled
	}
	if p.def.CollectTime <= 0 {
		return nil
	}

	deadline := time.NewTimer(p.def.CollectTime)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if token.IsCanceled() {
				return progress.ErrCanceled
			}
		}
	}
}

func (p *Pass) evaluate() (cty.Value, error) {
	if p.def.Result == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	v, diags := p.def.Result.Value(p.evalContext())
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating result of %s: %w", p, diags)
	}
	return v, nil
}

func (p *Pass) evalContext() *hcl.EvalContext {
	var stamp version.Stamp
	if p.oracle != nil {
		stamp = p.oracle.CurrentVersion(p.document)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"doc": cty.ObjectVal(map[string]cty.Value{
				"name":    cty.StringVal(p.document),
				"version": cty.NumberUIntVal(uint64(stamp)),
			}),
			"pass": cty.ObjectVal(map[string]cty.Value{
				"id": cty.StringVal(string(p.def.ID)),
			}),
			"passes": p.editor.Results(p.document),
		},
		Functions: functions,
	}
}

var functions = map[string]function.Function{
	"upper":      stdlib.UpperFunc,
	"lower":      stdlib.LowerFunc,
	"format":     stdlib.FormatFunc,
	"length":     stdlib.LengthFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"max":        stdlib.MaxFunc,
	"min":        stdlib.MinFunc,
	"concat":     stdlib.ConcatFunc,
	"join":       stdlib.JoinFunc,
	"coalesce":   stdlib.CoalesceFunc,
}
