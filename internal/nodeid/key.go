package nodeid

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/passgrid/internal/pass"
)

// Key is the arena key of a scheduled node. It is comparable and can be used
// directly as a map key.
type Key struct {
	Document string
	Pass     pass.ID
}

// New builds a key for the given document and pass.
func New(document string, id pass.ID) Key {
	return Key{Document: document, Pass: id}
}

// String serializes the key into its canonical `document:pass` form.
func (k Key) String() string {
	return k.Document + ":" + string(k.Pass)
}

// Parse creates a Key from its canonical string representation.
func Parse(raw string) (Key, error) {
	if raw == "" {
		return Key{}, fmt.Errorf("identifier cannot be empty")
	}
	i := strings.LastIndexByte(raw, ':')
	if i < 0 {
		return Key{}, fmt.Errorf("identifier %q has no document separator", raw)
	}
	doc, id := raw[:i], raw[i+1:]
	if doc == "" {
		return Key{}, fmt.Errorf("identifier %q has an empty document", raw)
	}
	if id == "" {
		return Key{}, fmt.Errorf("identifier %q has an empty pass", raw)
	}
	return New(doc, pass.ID(id)), nil
}

// Validate rejects pass identifiers that cannot round-trip through String.
func Validate(id pass.ID) error {
	if id == "" {
		return fmt.Errorf("pass identifier cannot be empty")
	}
	if strings.ContainsRune(string(id), ':') {
		return fmt.Errorf("pass identifier %q must not contain ':'", id)
	}
	return nil
}
