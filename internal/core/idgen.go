package core

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/valter-silva-au/meridian/pkg/models"
)

// IDGenerator produces unique identifiers for messages, events and runs.
// Implementations must be safe for concurrent use.
type IDGenerator interface {
	NewID(prefix string) string
}

// counterIDGenerator implements IDGenerator with a monotonic in-memory
// counter. Output is deterministic, which keeps replays and tests stable.
type counterIDGenerator struct {
	counter  atomic.Uint64
	padWidth int
}

// NewCounterIDGenerator creates an IDGenerator that yields {prefix}-{n}.
// padWidth controls the zero-padding width of n. Use 0 for no padding.
func NewCounterIDGenerator(padWidth int) IDGenerator {
	return &counterIDGenerator{padWidth: padWidth}
}

func (g *counterIDGenerator) NewID(prefix string) string {
	n := g.counter.Add(1)
	if g.padWidth > 0 {
		return fmt.Sprintf("%s-%0*d", prefix, g.padWidth, n)
	}
	return fmt.Sprintf("%s-%d", prefix, n)
}

// uuidIDGenerator implements IDGenerator with random UUIDs.
type uuidIDGenerator struct{}

// NewUUIDIDGenerator creates an IDGenerator that yields {prefix}-{uuid}.
func NewUUIDIDGenerator() IDGenerator {
	return uuidIDGenerator{}
}

func (uuidIDGenerator) NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewIDGenerator returns the generator selected by strategy. Unknown
// strategies fall back to the counter.
func NewIDGenerator(strategy models.IDStrategy) IDGenerator {
	if strategy == models.IDUUID {
		return NewUUIDIDGenerator()
	}
	return NewCounterIDGenerator(0)
}
