// Package id provides centralized ID generation for microhost.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: instances and events sort by creation time
//   - Prefixed types: type-specific prefixes for debugging (app_*, sbx_*, req_*)
//   - Type safety: separate types prevent ID misuse
//
// App names are the user-facing identity of a sub-application; these IDs
// identify a single registration of a name, so a name that is destroyed and
// created again gets a new AppID.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// AppID identifies one registration of a sub-application.
type AppID string

// SandboxID identifies a sandbox instance.
type SandboxID string

// RequestID identifies an API request.
type RequestID string

// EventID identifies a host event delivered to stream subscribers.
type EventID string

// ============================================================================
// ID Prefixes (for debugging and type identification)
// ============================================================================

const (
	AppPrefix     = "app"
	SandboxPrefix = "sbx"
	RequestPrefix = "req"
	EventPrefix   = "evt"
)

// ============================================================================
// ULID Generator (Primary)
// ============================================================================

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator.
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewAppID generates a new application ID.
func NewAppID() AppID {
	return AppID(Default().GenerateWithPrefix(AppPrefix))
}

// NewSandboxID generates a new sandbox ID.
func NewSandboxID() SandboxID {
	return SandboxID(Default().GenerateWithPrefix(SandboxPrefix))
}

// NewRequestID generates a new request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewEventID generates a new event ID.
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

// ============================================================================
// Type Conversion and Validation
// ============================================================================

func (id AppID) String() string     { return string(id) }
func (id SandboxID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id EventID) String() string   { return string(id) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string.
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID or a prefixed ULID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(stripPrefix(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

func stripPrefix(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '_' {
			return id[i+1:]
		}
	}
	return id
}
