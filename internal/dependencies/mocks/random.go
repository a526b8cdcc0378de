package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/rankdir/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Queued values are returned first, then a deterministic counter sequence.
type MockRandom struct {
	mu sync.Mutex

	uuids  []string
	tokens []string
	n      int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// UUID returns the next queued UUID or a generated one
func (r *MockRandom) UUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.uuids) > 0 {
		v := r.uuids[0]
		r.uuids = r.uuids[1:]
		return v
	}
	r.n++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", r.n)
}

// Token returns the next queued token or a generated one
func (r *MockRandom) Token(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tokens) > 0 {
		v := r.tokens[0]
		r.tokens = r.tokens[1:]
		return v
	}
	r.n++
	return fmt.Sprintf("token-%d", r.n)
}

// QueueUUID adds values to the UUID result queue
func (r *MockRandom) QueueUUID(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uuids = append(r.uuids, values...)
}

// QueueToken adds values to the Token result queue
func (r *MockRandom) QueueToken(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, values...)
}
