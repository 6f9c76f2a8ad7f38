// Package id provides ID generation for the playground backend.
//
// IDs are ULIDs with a short type prefix (ctx_*, doc_*, ws_*, req_*) so they
// sort by creation time and read well in logs. Separate string types keep a
// context ID from being passed where a document ID is expected.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ContextID identifies an isolated execution context
type ContextID string

// DocumentID identifies a mounted, revocable sandbox document
type DocumentID string

// WorkspaceID identifies one connected editor client
type WorkspaceID string

// RequestID identifies an API request or a simulated mock-server request
type RequestID string

const (
	ContextPrefix   = "ctx"
	DocumentPrefix  = "doc"
	WorkspacePrefix = "ws"
	RequestPrefix   = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
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

// NewGenerator creates a ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for tests that need deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewContextID generates a new isolated context ID
func NewContextID() ContextID {
	return ContextID(Default().GenerateWithPrefix(ContextPrefix))
}

// NewDocumentID generates a new document ID
func NewDocumentID() DocumentID {
	return DocumentID(Default().GenerateWithPrefix(DocumentPrefix))
}

// NewWorkspaceID generates a new workspace ID
func NewWorkspaceID() WorkspaceID {
	return WorkspaceID(Default().GenerateWithPrefix(WorkspacePrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id ContextID) String() string   { return string(id) }
func (id DocumentID) String() string  { return string(id) }
func (id WorkspaceID) String() string { return string(id) }
func (id RequestID) String() string   { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsValidPrefixed checks that id has the form prefix_ULID
func IsValidPrefixed(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && IsValid(rest)
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
