package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/progress"
)

// Event kinds recorded by RecordingPass.
const (
	CollectStart = "collect:start"
	CollectEnd   = "collect:end"
	Applied      = "apply"
)

// ExecutionRecord is the collect window of one pass.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Event is one observed step of a pass.
type Event struct {
	Kind string
	Pass string // document:pass
	At   time.Time
}

// Recorder is an ordered, thread-safe log of pass events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends an event.
func (r *Recorder) Record(kind, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Pass: key, At: time.Now()})
}

// Events returns a copy of the log.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Index returns the position of the first matching event, or -1.
func (r *Recorder) Index(kind, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e.Kind == kind && e.Pass == key {
			return i
		}
	}
	return -1
}

// Count returns how many matching events were recorded.
func (r *Recorder) Count(kind, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && e.Pass == key {
			n++
		}
	}
	return n
}

// Keys returns, in order, the passes of every event of the given kind.
func (r *Recorder) Keys(kind string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Pass)
		}
	}
	return out
}

// Records returns the collect window of every pass that finished collecting.
func (r *Recorder) Records() map[string]*ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*ExecutionRecord)
	for _, e := range r.events {
		switch e.Kind {
		case CollectStart:
			out[e.Pass] = &ExecutionRecord{Start: e.At}
		case CollectEnd:
			if rec, ok := out[e.Pass]; ok {
				rec.End = e.At
			}
		}
	}
	return out
}

// Pass creates a recording descriptor for document doc.
func (r *Recorder) Pass(doc string, id pass.ID) *RecordingPass {
	return &RecordingPass{rec: r, doc: doc, id: id}
}

// RecordingPass is a pass.Descriptor that logs its steps to a Recorder.
// Configure it with the chainable setters before submitting it.
type RecordingPass struct {
	rec *Recorder
	doc string
	id  pass.ID

	start      []pass.ID
	completion []pass.ID
	sleep      time.Duration
	gate       <-chan struct{}
	started    chan struct{}
	startOnce  sync.Once
	closeOnce  sync.Once
	collectErr error
	onCollect  func(token *progress.Token)
}

var _ pass.Descriptor = (*RecordingPass)(nil)

// After declares completion predecessors.
func (p *RecordingPass) After(ids ...pass.ID) *RecordingPass {
	p.completion = append(p.completion, ids...)
	return p
}

// StartAfter declares start predecessors.
func (p *RecordingPass) StartAfter(ids ...pass.ID) *RecordingPass {
	p.start = append(p.start, ids...)
	return p
}

// Sleeping makes collect take d, or less if the round is canceled.
func (p *RecordingPass) Sleeping(d time.Duration) *RecordingPass {
	p.sleep = d
	return p
}

// Gated makes collect wait until gate is closed or the round is canceled.
func (p *RecordingPass) Gated(gate <-chan struct{}) *RecordingPass {
	p.gate = gate
	return p
}

// Failing makes collect return err.
func (p *RecordingPass) Failing(err error) *RecordingPass {
	p.collectErr = err
	return p
}

// OnCollect runs fn at the start of collect.
func (p *RecordingPass) OnCollect(fn func(token *progress.Token)) *RecordingPass {
	p.onCollect = fn
	return p
}

// Started returns a channel closed once collect began.
func (p *RecordingPass) Started() <-chan struct{} {
	p.startOnce.Do(func() { p.started = make(chan struct{}) })
	return p.started
}

// Key returns the pass's `document:pass` key.
func (p *RecordingPass) Key() string {
	return p.doc + ":" + string(p.id)
}

func (p *RecordingPass) ID() pass.ID                  { return p.id }
func (p *RecordingPass) StartPredecessors() []pass.ID { return p.start }
func (p *RecordingPass) CompletionPredecessors() []pass.ID {
	return p.completion
}

func (p *RecordingPass) Collect(ctx context.Context, token *progress.Token) error {
	p.rec.Record(CollectStart, p.Key())
	p.Started()
	p.closeOnce.Do(func() { close(p.started) })
	if p.onCollect != nil {
		p.onCollect(token)
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
		}
	}
	if p.sleep > 0 {
		select {
		case <-time.After(p.sleep):
		case <-ctx.Done():
		}
	}
	p.rec.Record(CollectEnd, p.Key())
	return p.collectErr
}

func (p *RecordingPass) Apply(context.Context) error {
	p.rec.Record(Applied, p.Key())
	return nil
}
