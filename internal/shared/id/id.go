// Package id generates the identifiers that correlate log lines.
//
// Request ids and fresh trace ids are ULIDs: lexicographically sortable,
// time-prefixed and safe to generate from many goroutines.
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestIDHeader is the header a request id travels in, both ways
const RequestIDHeader = "request_id"

// RequestID identifies an inbound request
type RequestID string

func (id RequestID) String() string { return string(id) }

// Generator generates ULIDs
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
	now       func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy, now: time.Now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// NewRequestID generates a new request id
func NewRequestID() RequestID {
	return RequestID(Default().GenerateString())
}

// NewTraceID returns 16 random-enough bytes for a W3C trace id. The ULID
// timestamp prefix keeps ids from one process roughly ordered.
func NewTraceID() [16]byte {
	return Default().Generate()
}
