package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounded_LimitsConcurrency(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const size, jobs = 3, 12
	p := New(context.Background(), size)
	defer p.Close()

	var current, peak atomic.Int64

	// --- Act ---
	for i := 0; i < jobs; i++ {
		p.Enqueue("job", func(context.Context) {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}, nil)
	}
	p.Wait()

	// --- Assert ---
	assert.LessOrEqual(t, peak.Load(), int64(size))
	assert.Equal(t, int64(jobs), p.Stats().Started)
	assert.Zero(t, p.Stats().Running)
}

func TestBounded_CancelBeforeStartDropsJob(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := New(context.Background(), 1)
	defer p.Close()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	p.Enqueue("blocker", func(context.Context) {
		close(blockerStarted)
		<-release
	}, nil)
	<-blockerStarted

	var ran atomic.Bool
	var dropped atomic.Int32
	h := p.Enqueue("queued", func(context.Context) { ran.Store(true) }, func() { dropped.Add(1) })

	// --- Act ---
	h.Cancel()
	close(release)
	p.Wait()

	// --- Assert ---
	assert.False(t, ran.Load(), "a job canceled while queued must never run")
	assert.Equal(t, "queued", h.Name())
	assert.Equal(t, int64(1), p.Stats().Dropped)
	assert.Equal(t, int32(1), dropped.Load(), "the drop callback runs exactly once")
}

func TestBounded_CancelRunningJobCancelsItsContext(t *testing.T) {
	t.Parallel()

	p := New(context.Background(), 2)
	defer p.Close()

	started := make(chan struct{})
	finished := make(chan error, 1)
	h := p.Enqueue("long", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
	}, func() { t.Error("a started job must not be dropped") })
	<-started

	h.Cancel()

	select {
	case err := <-finished:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("running job did not observe cancellation")
	}
}

func TestBounded_CloseCancelsEverything(t *testing.T) {
	t.Parallel()

	p := New(context.Background(), 1)
	var observed, dropped atomic.Int64
	for i := 0; i < 3; i++ {
		p.Enqueue("job", func(ctx context.Context) {
			<-ctx.Done()
			observed.Add(1)
		}, func() { dropped.Add(1) })
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	stats := p.Stats()
	assert.Equal(t, stats.Started, observed.Load())
	assert.Equal(t, int64(3), stats.Started+stats.Dropped)
	assert.Equal(t, stats.Dropped, dropped.Load())
}

func TestBounded_AdmitsInEnqueueOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const jobs = 200
	p := New(context.Background(), 1)
	defer p.Close()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	p.Enqueue("blocker", func(context.Context) {
		close(blockerStarted)
		<-release
	}, nil)
	<-blockerStarted

	var mu sync.Mutex
	var order []int
	want := make([]int, jobs)
	for i := 0; i < jobs; i++ {
		want[i] = i
		p.Enqueue("job", func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, nil)
	}

	// --- Act ---
	close(release)
	p.Wait()

	// --- Assert ---
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, order)
}

func TestBounded_CanceledJobsBehindTheHeadAreDropped(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := New(context.Background(), 1)
	defer p.Close()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	p.Enqueue("blocker", func(context.Context) {
		close(blockerStarted)
		<-release
	}, nil)
	<-blockerStarted

	var ran, dropped atomic.Int32
	var handles []Handle
	for i := 0; i < 5; i++ {
		handles = append(handles, p.Enqueue("queued", func(context.Context) { ran.Add(1) }, func() { dropped.Add(1) }))
	}

	// --- Act ---
	for _, h := range handles[1:4] {
		h.Cancel()
	}
	close(release)
	p.Wait()

	// --- Assert ---
	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, int32(3), dropped.Load())
	assert.Equal(t, int64(3), p.Stats().Started)
}

func TestBounded_EnqueueAfterCloseDrops(t *testing.T) {
	t.Parallel()

	p := New(context.Background(), 2)
	p.Close()

	var dropped atomic.Bool
	p.Enqueue("late", func(context.Context) { t.Error("job must not run after Close") }, func() { dropped.Store(true) })

	assert.True(t, dropped.Load())
	assert.Equal(t, int64(1), p.Stats().Dropped)
}

func TestNew_ClampsSize(t *testing.T) {
	p := New(context.Background(), 0)
	defer p.Close()
	assert.Equal(t, 1, p.Size())
}
