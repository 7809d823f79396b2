// Package idgen produces collision-resistant, lexicographically sortable
// identifiers for outgoing RPC requests.
package idgen

import (
	cryptorand "crypto/rand"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropySource wraps a math/rand source seeded from crypto/rand, with
// the wall clock as the seed only when crypto/rand cannot be read.
type entropySource struct {
	mu     sync.Mutex
	source *mathrand.Rand
}

func newEntropySource() *entropySource {
	var seed int64
	if err := binaryReadSeed(&seed); err != nil {
		seed = time.Now().UnixNano()
	}
	return &entropySource{source: mathrand.New(mathrand.NewSource(seed))}
}

func binaryReadSeed(seed *int64) error {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return err
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	*seed = v
	return nil
}

func (e *entropySource) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source.Read(p)
}

// Generator produces monotonically increasing request identifiers within
// the same millisecond, falling back to fresh random entropy across
// millisecond boundaries.
type Generator struct {
	mu      sync.Mutex
	entropy ulid.MonotonicReader
}

// New constructs a Generator with its own private entropy source.
func New() *Generator {
	entropy := ulid.Monotonic(newEntropySource(), 0)
	return &Generator{entropy: entropy}
}

// Next returns a new identifier, unique and sortable by time of
// generation.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return id.String()
}
