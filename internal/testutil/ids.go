package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator yields execution ids "<prefix>-0001", "<prefix>-0002", ...
//
// The same scenario run with a fresh generator produces the same ids, which
// keeps golden chain traces byte-identical.
//
// Thread-safety: safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. An empty prefix defaults to "exec".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "exec"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
