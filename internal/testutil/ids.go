package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns predetermined identifiers in order, then
// numbered fallbacks once they run out.
//
// This keeps store directory names and secret ids stable across test runs.
//
// Thread-safety: FixedIDGenerator is safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator over ids.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// NewID returns the next identifier.
func (g *FixedIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() { g.idx++ }()
	if g.idx < len(g.ids) {
		return g.ids[g.idx]
	}
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.idx+1)
}
