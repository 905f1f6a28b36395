package roundfile

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/passgrid/internal/pass"
)

// Model is the merged content of every loaded round file.
type Model struct {
	Scheduler Scheduler
	Documents []*Document
	Edits     []Edit
}

// Scheduler holds the optional `scheduler` block settings. Zero values mean
// "not set" and leave the command-line value in place.
type Scheduler struct {
	Workers   int
	MaxRounds int
}

// Document is one `document` block.
type Document struct {
	Name   string
	Passes []*Pass
}

// Pass is one `pass` block.
type Pass struct {
	ID              pass.ID
	StartAfter      []pass.ID
	CompletionAfter []pass.ID
	CollectTime     time.Duration
	// Fail, when not empty, makes the simulated collect fail with this
	// message.
	Fail string
	// Result is evaluated at collect time. A block without `result`
	// evaluates to null.
	Result hcl.Expression
}

// Edit is one `edit` block: an edit to Document, After into the first
// round.
type Edit struct {
	Document string
	After    time.Duration
}

// Document returns the named document, or nil.
func (m *Model) Document(name string) *Document {
	for _, d := range m.Documents {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// PassCount returns the number of passes across all documents.
func (m *Model) PassCount() int {
	n := 0
	for _, d := range m.Documents {
		n += len(d.Passes)
	}
	return n
}
