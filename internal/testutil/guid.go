package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequenceGenerator mints readable guids "<prefix>-0001", "<prefix>-0002", ...
//
// Unlike engine.FixedGenerator, it never runs out, which suits tests that
// stage an unknown number of records.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewSequenceGenerator creates a generator. An empty prefix means "rec".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "rec"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next guid.
func (g *SequenceGenerator) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
