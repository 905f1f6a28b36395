package simpass

import (
	"sort"
	"sync"

	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/zclconf/go-cty/cty"
)

// Editor stands in for the editor binding layer: it keeps the last applied
// result of every pass, per document.
type Editor struct {
	mu      sync.RWMutex
	docs    map[string]map[pass.ID]cty.Value
	applied int
}

// NewEditor creates an empty editor.
func NewEditor() *Editor {
	return &Editor{docs: make(map[string]map[pass.ID]cty.Value)}
}

// Publish records v as the applied result of pass id on document.
func (e *Editor) Publish(document string, id pass.ID, v cty.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	results, ok := e.docs[document]
	if !ok {
		results = make(map[pass.ID]cty.Value)
		e.docs[document] = results
	}
	results[id] = v
	e.applied++
}

// Result returns the applied result of one pass.
func (e *Editor) Result(document string, id pass.ID) (cty.Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.docs[document][id]
	return v, ok
}

// Results returns every applied result of document as a cty object keyed
// by pass id. Passes that have not applied yet are absent.
func (e *Editor) Results(document string) cty.Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	results := e.docs[document]
	if len(results) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(results))
	for id, v := range results {
		attrs[string(id)] = v
	}
	return cty.ObjectVal(attrs)
}

// Passes lists the ids applied on document, sorted.
func (e *Editor) Passes(document string) []pass.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]pass.ID, 0, len(e.docs[document]))
	for id := range e.docs[document] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Applied returns how many results were published in total.
func (e *Editor) Applied() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.applied
}

// Forget drops the results of document, typically before it is
// re-analyzed after an edit.
func (e *Editor) Forget(document string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, document)
}
