package version

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_TouchAdvancesEveryDocument(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	before := tr.Current()

	after := tr.Touch("a.go")

	assert.NotEqual(t, before, after)
	assert.Equal(t, after, tr.CurrentVersion("a.go"))
	assert.Equal(t, after, tr.CurrentVersion("b.go"), "an edit anywhere invalidates every stamp")
	assert.Equal(t, uint64(1), tr.Edits("a.go"))
	assert.Equal(t, uint64(0), tr.Edits("b.go"))
}

func TestTracker_ConcurrentTouches(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	tr := NewTracker()
	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)

	// --- Act ---
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			tr.Touch(fmt.Sprintf("doc-%d", i%5))
		}(i)
	}
	wg.Wait()

	// --- Assert ---
	assert.Equal(t, Stamp(workers), tr.Current())
	for i := 0; i < 5; i++ {
		assert.Equal(t, uint64(workers/5), tr.Edits(fmt.Sprintf("doc-%d", i)))
	}
}

func TestOracleFunc(t *testing.T) {
	t.Parallel()

	oracle := OracleFunc(func(doc string) Stamp {
		if doc == "stale" {
			return 2
		}
		return 1
	})

	assert.Equal(t, Stamp(1), oracle.CurrentVersion("fresh"))
	assert.Equal(t, Stamp(2), oracle.CurrentVersion("stale"))
	assert.Equal(t, "v2", Stamp(2).String())
}
