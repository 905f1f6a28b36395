package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/dag"
	"github.com/specialistvlad/passgrid/internal/executor"
	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/progress"
	"github.com/specialistvlad/passgrid/internal/testutil"
	"github.com/specialistvlad/passgrid/internal/version"
	"github.com/specialistvlad/passgrid/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	o       *Orchestrator
	pool    *workerpool.Bounded
	tracker *version.Tracker
	rec     *testutil.Recorder
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	pool := workerpool.New(context.Background(), workers)
	tracker := version.NewTracker()
	h := &harness{
		o:       New(pool, tracker),
		pool:    pool,
		tracker: tracker,
		rec:     &testutil.Recorder{},
	}
	t.Cleanup(func() {
		h.o.Close()
		pool.Close()
	})
	return h
}

func (h *harness) submit(t *testing.T, batch ...Document) *progress.Token {
	t.Helper()
	tok := progress.New(context.Background(), t.Name())
	t.Cleanup(tok.Release)
	err := h.o.SubmitRound(context.Background(), Request{Batch: batch, Token: tok, Stamp: h.tracker.Current()})
	require.NoError(t, err)
	return tok
}

func waitDone(t *testing.T, tok *progress.Token) {
	t.Helper()
	select {
	case <-tok.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the round to finish")
	}
}

func passes(ps ...*testutil.RecordingPass) []pass.Pass {
	out := make([]pass.Pass, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

// TestSubmitRound_StartAndCompletionEdges checks the basic diamond of edge
// kinds: P2 waits for P1 to finish, P3 only for P1 to start.
func TestSubmitRound_StartAndCompletionEdges(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, 4)
	p3 := h.rec.Pass("main.go", "P3").StartAfter("P1")
	// P1 cannot finish collecting until P3 started, which deadlocks unless
	// P3 is submitted as soon as P1 begins.
	p1 := h.rec.Pass("main.go", "P1").Gated(p3.Started())
	p2 := h.rec.Pass("main.go", "P2").After("P1")

	// --- Act ---
	tok := h.submit(t, Document{Name: "main.go", Passes: passes(p1, p2, p3)})
	waitDone(t, tok)

	// --- Assert ---
	require.True(t, tok.Completed(), "round should complete, got cause %v", tok.Err())
	for _, p := range []*testutil.RecordingPass{p1, p2, p3} {
		assert.Equal(t, 1, h.rec.Count(testutil.Applied, p.Key()), "%s applied once", p.Key())
	}
	assert.Greater(t, h.rec.Index(testutil.CollectStart, p2.Key()), h.rec.Index(testutil.Applied, p1.Key()),
		"a completion successor must not collect before its predecessor applied")
	assert.Less(t, h.rec.Index(testutil.CollectStart, p3.Key()), h.rec.Index(testutil.CollectEnd, p1.Key()),
		"a start successor runs while its predecessor is still collecting")
}

func TestSubmitRound_PlainListRunsInOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, 4)
	var list []*testutil.RecordingPass
	for i := 0; i < 5; i++ {
		list = append(list, h.rec.Pass("a.go", pass.ID(fmt.Sprintf("step%d", i))).Sleeping(2*time.Millisecond))
	}

	// --- Act ---
	tok := h.submit(t, Document{Name: "a.go", Passes: passes(list...)})
	waitDone(t, tok)

	// --- Assert ---
	require.True(t, tok.Completed())
	var want []string
	for _, p := range list {
		want = append(want, p.Key())
	}
	assert.Equal(t, want, h.rec.Keys(testutil.Applied))
	for i := 1; i < len(list); i++ {
		assert.Greater(t, h.rec.Index(testutil.CollectStart, list[i].Key()), h.rec.Index(testutil.Applied, list[i-1].Key()))
	}
}

// plainPass does not implement pass.Descriptor and gets wrapped.
type plainPass struct {
	name string
	ch   chan string
}

func (p *plainPass) Collect(context.Context, *progress.Token) error { return nil }
func (p *plainPass) Apply(context.Context) error {
	p.ch <- p.name
	return nil
}

func TestSubmitRound_WrapsPlainPasses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	ch := make(chan string, 3)
	batch := Document{Name: "doc", Passes: []pass.Pass{
		&plainPass{name: "a", ch: ch},
		&plainPass{name: "b", ch: ch},
		&plainPass{name: "c", ch: ch},
	}}

	tok := h.submit(t, batch)
	waitDone(t, tok)
	close(ch)

	var got []string
	for name := range ch {
		got = append(got, name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSubmitRound_EveryPassAppliedExactlyOnce(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, 8)
	var batch []Document
	var all []*testutil.RecordingPass
	for d := 0; d < 4; d++ {
		doc := fmt.Sprintf("doc%d.go", d)
		root := h.rec.Pass(doc, "parse")
		fan := []*testutil.RecordingPass{root}
		for i := 0; i < 5; i++ {
			kind := h.rec.Pass(doc, pass.ID(fmt.Sprintf("inspect%d", i)))
			if i%2 == 0 {
				kind.After("parse")
			} else {
				kind.StartAfter("parse")
			}
			fan = append(fan, kind)
		}
		sink := h.rec.Pass(doc, "markers").After("inspect0", "inspect1", "inspect2", "inspect3", "inspect4", "inspect0")
		fan = append(fan, sink)
		all = append(all, fan...)
		batch = append(batch, Document{Name: doc, Passes: passes(fan...)})
	}

	// --- Act ---
	tok := h.submit(t, batch...)
	waitDone(t, tok)

	// --- Assert ---
	require.True(t, tok.Completed(), "cause: %v", tok.Err())
	for _, p := range all {
		assert.Equal(t, 1, h.rec.Count(testutil.Applied, p.Key()), p.Key())
	}
	assert.Len(t, h.rec.Keys(testutil.Applied), len(all))
	h.pool.Wait()
	assert.Empty(t, h.o.ListInFlight())
	assert.Eventually(t, func() bool { return h.o.Rounds() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCancelAll_NoApplyAfterCancel(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, 2)
	gate := make(chan struct{})
	p1 := h.rec.Pass("doc", "P1").Gated(gate)
	p2 := h.rec.Pass("doc", "P2").After("P1")
	p3 := h.rec.Pass("doc", "P3").After("P2")
	tok := h.submit(t, Document{Name: "doc", Passes: passes(p1, p2, p3)})
	<-p1.Started()

	// --- Act ---
	h.o.CancelAll()
	h.o.CancelAll()
	close(gate)
	h.pool.Wait()

	// --- Assert ---
	waitDone(t, tok)
	assert.True(t, tok.IsCanceled())
	assert.ErrorIs(t, tok.Err(), progress.ErrCanceled)
	assert.Empty(t, h.rec.Keys(testutil.Applied))
	assert.Equal(t, -1, h.rec.Index(testutil.CollectStart, p2.Key()))
	assert.Empty(t, h.o.ListInFlight())
}

func TestCancelAll_QueuedPassesStillCountDown(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// One worker: P2 and P3 are submitted when P1 starts, but wait in the
	// pool's queue until the round is canceled.
	h := newHarness(t, 1)
	gate := make(chan struct{})
	p1 := h.rec.Pass("doc", "P1").Gated(gate)
	p2 := h.rec.Pass("doc", "P2").StartAfter("P1")
	p3 := h.rec.Pass("doc", "P3").StartAfter("P1")
	tok := h.submit(t, Document{Name: "doc", Passes: passes(p1, p2, p3)})
	<-p1.Started()
	require.Eventually(t, func() bool { return len(h.o.InFlight()) == 3 }, time.Second, time.Millisecond)
	round := h.o.InFlight()[0].Round()

	// --- Act ---
	h.o.CancelAll()
	close(gate)
	h.pool.Wait()

	// --- Assert ---
	waitDone(t, tok)
	assert.Zero(t, round.Outstanding(), "every submitted pass must be counted down once")
	assert.Equal(t, int64(1), h.pool.Stats().Started)
	assert.Equal(t, int64(2), h.pool.Stats().Dropped)
	assert.Equal(t, -1, h.rec.Index(testutil.CollectStart, p2.Key()))
	assert.Equal(t, -1, h.rec.Index(testutil.CollectStart, p3.Key()))
	assert.Empty(t, h.o.ListInFlight())
}

func TestSubmitRound_StaleDocumentCancelsWholeRound(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, 4)
	a1 := h.rec.Pass("a.go", "P1").OnCollect(func(*progress.Token) { h.tracker.Touch("a.go") })
	a2 := h.rec.Pass("a.go", "P2").After("P1")
	gate := make(chan struct{})
	b1 := h.rec.Pass("b.go", "P1").Gated(gate)
	b2 := h.rec.Pass("b.go", "P2").After("P1")

	// --- Act ---
	tok := h.submit(t,
		Document{Name: "a.go", Passes: passes(a1, a2)},
		Document{Name: "b.go", Passes: passes(b1, b2)},
	)
	waitDone(t, tok)
	close(gate)
	h.pool.Wait()

	// --- Assert ---
	assert.ErrorIs(t, tok.Err(), executor.ErrStale)
	assert.Empty(t, h.rec.Keys(testutil.Applied), "no pass of a stale round may apply")
	assert.Equal(t, -1, h.rec.Index(testutil.CollectStart, a2.Key()))
	assert.Equal(t, -1, h.rec.Index(testutil.CollectStart, b2.Key()))
}

func TestSubmitRound_FaultCancelsRound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	boom := errors.New("parser crashed")
	p1 := h.rec.Pass("doc", "P1").Failing(boom)
	p2 := h.rec.Pass("doc", "P2").After("P1")

	tok := h.submit(t, Document{Name: "doc", Passes: passes(p1, p2)})
	waitDone(t, tok)
	h.pool.Wait()

	var fault *executor.FaultError
	require.ErrorAs(t, tok.Err(), &fault)
	assert.ErrorIs(t, tok.Err(), boom)
	assert.Empty(t, h.rec.Keys(testutil.Applied))
}

func TestSubmitRound_CycleIsRejectedBeforeSubmission(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	a := h.rec.Pass("doc", "A").After("B")
	b := h.rec.Pass("doc", "B").After("A")
	free := h.rec.Pass("other", "free")
	tok := progress.New(context.Background(), "cyclic")
	defer tok.Release()

	err := h.o.SubmitRound(context.Background(), Request{
		Batch: []Document{{Name: "other", Passes: passes(free)}, {Name: "doc", Passes: passes(a, b)}},
		Token: tok,
	})

	require.ErrorIs(t, err, dag.ErrCycle)
	h.pool.Wait()
	assert.Empty(t, h.rec.Events(), "nothing may run when the graph is invalid")
	assert.True(t, tok.IsRunning())
}

func TestSubmitRound_EmptyBatchCompletesImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	tok := h.submit(t)

	assert.True(t, tok.Completed())
	assert.Zero(t, h.o.Rounds())
}

func TestSubmitRound_CustomApplyHook(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, 2)
	p1 := h.rec.Pass("doc", "P1")
	var calls atomic.Int32
	tok := progress.New(context.Background(), "hooked")
	defer tok.Release()

	// --- Act ---
	err := h.o.SubmitRound(context.Background(), Request{
		Batch: []Document{{Name: "doc", Passes: passes(p1)}},
		Token: tok,
		Stamp: h.tracker.Current(),
		Apply: func(ctx context.Context, d pass.Descriptor, document string, got *progress.Token) error {
			calls.Add(1)
			assert.Equal(t, "doc", document)
			assert.Same(t, tok, got)
			return d.Apply(ctx)
		},
	})
	require.NoError(t, err)
	waitDone(t, tok)

	// --- Assert ---
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, h.rec.Count(testutil.Applied, p1.Key()))
}

func TestListInFlight_ShowsRunningPasses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	gate := make(chan struct{})
	p1 := h.rec.Pass("doc", "P1").Gated(gate)
	tok := h.submit(t, Document{Name: "doc", Passes: passes(p1)})
	<-p1.Started()

	inFlight := h.o.ListInFlight()
	require.Len(t, inFlight, 1)
	assert.Equal(t, pass.ID("P1"), inFlight[0].ID())
	require.Len(t, h.o.InFlight(), 1)
	assert.Equal(t, "doc", h.o.InFlight()[0].Document())

	close(gate)
	waitDone(t, tok)
	h.pool.Wait()
	assert.Empty(t, h.o.ListInFlight())
}

func TestSubmitRound_LogsUnresolvedPredecessors(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, 2)
	logs := &testutil.SafeBuffer{}
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(logs, nil)))
	p1 := h.rec.Pass("doc", "P1").After("missing")
	tok := progress.New(ctx, t.Name())
	defer tok.Release()

	// --- Act ---
	err := h.o.SubmitRound(ctx, Request{Batch: []Document{{Name: "doc", Passes: passes(p1)}}, Token: tok})

	// --- Assert ---
	require.NoError(t, err)
	waitDone(t, tok)
	assert.True(t, tok.Completed())
	assert.Equal(t, 1, h.rec.Count(testutil.Applied, p1.Key()))
	assert.Contains(t, logs.String(), "Round has unresolved predecessors.")
	assert.Contains(t, logs.String(), "dropped_edges=1")
}

func TestClose_RejectsNewRounds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	h.o.Close()

	tok := progress.New(context.Background(), "late")
	defer tok.Release()
	err := h.o.SubmitRound(context.Background(), Request{
		Batch: []Document{{Name: "doc", Passes: passes(h.rec.Pass("doc", "P1"))}},
		Token: tok,
	})

	require.ErrorIs(t, err, ErrClosed)
}
