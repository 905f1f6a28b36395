// Package applier provides the apply hooks handed to the orchestrator: the
// code that moves a finished pass's results into the editor.
package applier

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/node"
	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/progress"
)

// ErrClosed is returned by Serial.Apply once the applier was closed.
var ErrClosed = errors.New("applier closed")

// Direct applies the pass on the calling worker.
func Direct(ctx context.Context, d pass.Descriptor, _ string, _ *progress.Token) error {
	return d.Apply(ctx)
}

var _ node.ApplyFunc = Direct

type request struct {
	ctx      context.Context
	d        pass.Descriptor
	document string
	token    *progress.Token
	reply    chan error
}

// Serial runs every apply on one goroutine, the way an editor that owns a
// single UI thread would. Workers block until their apply ran.
type Serial struct {
	next     node.ApplyFunc
	requests chan request
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewSerial starts the apply goroutine. next does the actual work; nil means
// Direct.
func NewSerial(next node.ApplyFunc) *Serial {
	if next == nil {
		next = Direct
	}
	s := &Serial{
		next:     next,
		requests: make(chan request),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			req.reply <- s.next(req.ctx, req.d, req.document, req.token)
		}
	}
}

// Apply hands the apply to the serial goroutine and waits for its result.
func (s *Serial) Apply(ctx context.Context, d pass.Descriptor, document string, token *progress.Token) error {
	req := request{ctx: ctx, d: d, document: document, token: token, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		ctxlog.FromContext(ctx).Warn("Gave up waiting for a serial apply.", "document", document, "pass", d.ID())
		return ctx.Err()
	}
}

// Close stops the apply goroutine after the apply in progress, if any.
func (s *Serial) Close() {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
}
