// Package testutil holds helpers shared by the package tests: a log sink that
// tolerates concurrent writers, an ordered recorder of pass events and round
// file fixtures.
package testutil

import (
	"strings"
	"sync"
)

// SafeBuffer collects log output written from many goroutines.
type SafeBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

// Lines returns the non-empty lines written so far.
func (b *SafeBuffer) Lines() []string {
	var out []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Count returns how many lines contain substr.
func (b *SafeBuffer) Count(substr string) int {
	n := 0
	for _, line := range b.Lines() {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}
