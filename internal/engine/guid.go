package engine

import (
	"sync"

	"github.com/google/uuid"
)

// GUIDGenerator mints guids for records staged on this node.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type GUIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 record guids, so guids
// minted on one node sort in staging order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined guids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu    sync.Mutex
	guids []string
	idx   int
}

// NewFixedGenerator creates a generator that returns guids in order.
//
//	gen := NewFixedGenerator("rec-1", "rec-2")
//	gen.Generate() // "rec-1"
//	gen.Generate() // "rec-2"
//	gen.Generate() // panic: all guids exhausted
func NewFixedGenerator(guids ...string) *FixedGenerator {
	return &FixedGenerator{guids: guids}
}

// Generate returns the next predetermined guid.
//
// Panics if all guids have been consumed: a test staged more records than
// it planned for.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.guids) {
		panic("FixedGenerator: all guids exhausted")
	}
	guid := g.guids[g.idx]
	g.idx++
	return guid
}
