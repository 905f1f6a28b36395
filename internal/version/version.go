// Package version defines how the scheduler detects that a document changed
// underneath a running round.
package version

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Stamp is an opaque, comparable snapshot of document state. Two stamps are
// only ever compared for equality.
type Stamp uint64

func (s Stamp) String() string {
	return "v" + strconv.FormatUint(uint64(s), 10)
}

// Oracle reports the current version of a document.
type Oracle interface {
	CurrentVersion(document string) Stamp
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(document string) Stamp

// CurrentVersion implements Oracle.
func (f OracleFunc) CurrentVersion(document string) Stamp {
	return f(document)
}

// Tracker is a modification tracker: every edit to any document bumps one
// global counter, and that counter is the version of every document. A
// round stamped with Current() therefore goes stale as soon as anything is
// edited.
//
// Per-document edit counts are kept alongside for introspection.
type Tracker struct {
	global atomic.Uint64
	edits  sync.Map // Key: document name, Value: *atomic.Uint64
}

// NewTracker creates a tracker with no recorded edits.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Current returns the stamp a new round should capture.
func (t *Tracker) Current() Stamp {
	return Stamp(t.global.Load())
}

// CurrentVersion implements Oracle.
func (t *Tracker) CurrentVersion(string) Stamp {
	return t.Current()
}

// Touch records an edit to document and returns the new global stamp.
func (t *Tracker) Touch(document string) Stamp {
	counter, _ := t.edits.LoadOrStore(document, new(atomic.Uint64))
	counter.(*atomic.Uint64).Add(1)
	return Stamp(t.global.Add(1))
}

// Edits returns how many times document was touched.
func (t *Tracker) Edits(document string) uint64 {
	counter, ok := t.edits.Load(document)
	if !ok {
		return 0
	}
	return counter.(*atomic.Uint64).Load()
}
