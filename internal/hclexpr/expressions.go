// Package hclexpr inspects HCL expressions without evaluating them: which
// variables they read and which functions they call. It also renders cty
// values back into HCL syntax for log output.
package hclexpr

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// TraversalKey generates a stable, canonical string representation for an
// hcl.Traversal, suitable for use as a map key.
func TraversalKey(t hcl.Traversal) string {
	// e.g., passes.parse.tokens
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// Analyze returns the unique variable traversals and function names found in
// exprs, both sorted. Nil expressions are ignored.
func Analyze(exprs ...hcl.Expression) ([]hcl.Traversal, []string) {
	traversals := make(map[string]hcl.Traversal)
	functions := make(map[string]struct{})

	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		for _, traversal := range expr.Variables() {
			traversals[TraversalKey(traversal)] = traversal
		}
		// Variables() does not report function calls.
		if syntaxExpr, ok := expr.(hclsyntax.Expression); ok {
			collectFunctions(syntaxExpr, functions)
		}
	}

	keys := make([]string, 0, len(traversals))
	for k := range traversals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	refs := make([]hcl.Traversal, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, traversals[k])
	}

	funcs := make([]string, 0, len(functions))
	for f := range functions {
		funcs = append(funcs, f)
	}
	sort.Strings(funcs)

	return refs, funcs
}

// Attribute returns the first attribute name after root in t, for
// traversals like `root.name...`.
func Attribute(t hcl.Traversal, root string) (string, bool) {
	if len(t) < 2 || t.RootName() != root {
		return "", false
	}
	switch step := t[1].(type) {
	case hcl.TraverseAttr:
		return step.Name, true
	case hcl.TraverseIndex:
		if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
			return step.Key.AsString(), true
		}
	}
	return "", false
}

// Render formats v as HCL.
func Render(v cty.Value) string {
	if v.IsNull() {
		return "null"
	}
	if !v.IsWhollyKnown() {
		return "(known after collect)"
	}
	return string(hclwrite.TokensForValue(v).Bytes())
}

func collectFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	walk := func(exprs ...hclsyntax.Expression) {
		for _, e := range exprs {
			collectFunctions(e, functions)
		}
	}

	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		walk(e.Args...)
	case *hclsyntax.BinaryOpExpr:
		walk(e.LHS, e.RHS)
	case *hclsyntax.ConditionalExpr:
		walk(e.Condition, e.TrueResult, e.FalseResult)
	case *hclsyntax.UnaryOpExpr:
		walk(e.Val)
	case *hclsyntax.TemplateExpr:
		walk(e.Parts...)
	case *hclsyntax.TemplateWrapExpr:
		walk(e.Wrapped)
	case *hclsyntax.TupleConsExpr:
		walk(e.Exprs...)
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walk(item.KeyExpr, item.ValueExpr)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walk(e.Wrapped)
	case *hclsyntax.ForExpr:
		walk(e.CollExpr, e.KeyExpr, e.ValExpr, e.CondExpr)
	case *hclsyntax.IndexExpr:
		walk(e.Collection, e.Key)
	case *hclsyntax.RelativeTraversalExpr:
		walk(e.Source)
	case *hclsyntax.SplatExpr:
		walk(e.Source, e.Each)
	case *hclsyntax.ParenthesesExpr:
		walk(e.Expression)
	}
}
