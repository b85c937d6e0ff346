package testutil

import (
	"fmt"
	"sync"
)

// SequentialOpIDs generates op ids prefix-1, prefix-2, ... so that traces
// of the same scenario are byte-identical across runs.
type SequentialOpIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialOpIDs returns a generator. An empty prefix uses "op".
func NewSequentialOpIDs(prefix string) *SequentialOpIDs {
	if prefix == "" {
		prefix = "op"
	}
	return &SequentialOpIDs{prefix: prefix}
}

// Generate returns the next id. Implements engine.OpIDGenerator.
func (g *SequentialOpIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
