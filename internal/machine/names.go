package machine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NameGenerator mints fresh unforgeable channel identifiers for the
// name-creation construct. Implemented by UUIDv7Generator (production)
// and FixedGenerator (tests).
type NameGenerator interface {
	Fresh() string
}

// UUIDv7Generator mints time-sortable UUIDv7 channel identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, making minted
// names sortable by creation time, which helps when reading traces.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Fresh creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Fresh() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator mints predictable sequential names for deterministic
// tests and golden trace comparison: prefix-1, prefix-2, ...
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedGenerator creates a generator producing prefix-1, prefix-2, ...
func NewFixedGenerator(prefix string) *FixedGenerator {
	return &FixedGenerator{prefix: prefix}
}

// Fresh returns the next sequential name.
func (g *FixedGenerator) Fresh() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
