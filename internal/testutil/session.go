package testutil

// FixedSessionGenerator returns the same session id every time.
//
// Debug file names and log attributes derive from the session id, so a fixed
// id makes them predictable in tests.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id.
// If id is empty, Generate() returns "test-session".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session id.
//
// Implements supervisor.SessionIDGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
