// Package workerpool provides the bounded executor the scheduler submits
// nodes to.
//
// Pool is the capability the scheduler depends on. Bounded is the reference
// implementation: at most N jobs run at once and waiting jobs are admitted in
// the order they were enqueued.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"golang.org/x/sync/semaphore"
)

// Job is a unit of work. The context is canceled when the job's handle is
// canceled or the pool is closed.
type Job func(ctx context.Context)

// Handle refers to one enqueued job.
type Handle interface {
	// Cancel asks the job not to start, or cancels its context if it is
	// already running. It never blocks.
	Cancel()
	// Name returns the name the job was enqueued with.
	Name() string
}

// Pool runs jobs with bounded concurrency.
//
// Every enqueued job ends in exactly one of two ways: job runs, or dropped
// is called because the job was canceled before it started. dropped may be
// nil.
type Pool interface {
	Enqueue(name string, job Job, dropped func()) Handle
}

// Stats is a snapshot of a Bounded pool's counters.
type Stats struct {
	Started int64
	Dropped int64
	Running int64
}

// Bounded is a Pool that admits at most Size jobs at a time. Jobs wait in a
// single queue; one admission goroutine takes them in order and acquires a
// slot of a weighted semaphore for each before starting it.
type Bounded struct {
	size int
	sem  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queue  []*task
	closed bool
	wake   chan struct{}
	idle   chan struct{}

	started atomic.Int64
	dropped atomic.Int64
	running atomic.Int64
}

var _ Pool = (*Bounded)(nil)

type task struct {
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	job     Job
	dropped func()
}

// New creates a pool running at most size jobs at once. The given context
// is the parent of every job context; its logger is used for pool events.
func New(ctx context.Context, size int) *Bounded {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Bounded{
		size:   size,
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		idle:   make(chan struct{}),
	}
	go p.admit()
	return p
}

// Size returns the concurrency limit.
func (p *Bounded) Size() int {
	return p.size
}

// Enqueue appends job to the queue and returns immediately. After Close the
// job is dropped right away.
func (p *Bounded) Enqueue(name string, job Job, dropped func()) Handle {
	ctx, cancel := context.WithCancel(p.ctx)
	t := &task{name: name, ctx: ctx, cancel: cancel, job: job, dropped: dropped}
	h := &handle{name: name, cancel: cancel}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.drop(t)
		return h
	}
	p.wg.Add(1)
	p.queue = append(p.queue, t)
	p.mu.Unlock()

	p.signal()
	return h
}

func (p *Bounded) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// pop removes the head of the queue. It returns nil when the queue is
// empty, along with whether the pool was closed.
func (p *Bounded) pop() (*task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, p.closed
	}
	t := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return t, false
}

// admit starts queued jobs in order, waiting for a free slot before each.
func (p *Bounded) admit() {
	defer close(p.idle)
	for {
		t, closed := p.pop()
		if t == nil {
			if closed {
				return
			}
			<-p.wake
			continue
		}
		p.start(t)
	}
}

func (p *Bounded) start(t *task) {
	if t.ctx.Err() != nil {
		p.drop(t)
		p.wg.Done()
		return
	}
	if err := p.sem.Acquire(t.ctx, 1); err != nil {
		p.drop(t)
		p.wg.Done()
		return
	}
	// Acquire may win the race against a cancellation that already
	// happened.
	if t.ctx.Err() != nil {
		p.sem.Release(1)
		p.drop(t)
		p.wg.Done()
		return
	}

	p.started.Add(1)
	p.running.Add(1)
	go func() {
		defer p.wg.Done()
		defer t.cancel()
		defer p.sem.Release(1)
		defer p.running.Add(-1)
		t.job(t.ctx)
	}()
}

func (p *Bounded) drop(t *task) {
	t.cancel()
	p.dropped.Add(1)
	ctxlog.FromContext(p.ctx).Debug("Job canceled before it started.", "job", t.name)
	if t.dropped != nil {
		t.dropped()
	}
}

// Stats returns the pool's counters.
func (p *Bounded) Stats() Stats {
	return Stats{
		Started: p.started.Load(),
		Dropped: p.dropped.Load(),
		Running: p.running.Load(),
	}
}

// Close cancels every queued and running job and waits for them to return.
// Queued jobs are dropped.
func (p *Bounded) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.signal()
	<-p.idle
	p.wg.Wait()
}

// Wait blocks until every enqueued job returned or was dropped, without
// canceling them.
func (p *Bounded) Wait() {
	p.wg.Wait()
}

type handle struct {
	name   string
	cancel context.CancelFunc
}

func (h *handle) Cancel()      { h.cancel() }
func (h *handle) Name() string { return h.name }
