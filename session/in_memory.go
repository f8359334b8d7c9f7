package session

import (
	"context"
	"sync"

	"github.com/hupe1980/medguard/core"
)

// DefaultMaxTurns bounds the history kept per session.
const DefaultMaxTurns = 20

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// MaxTurns is the number of most recent turns kept. Zero keeps everything.
	MaxTurns int
}

// InMemoryStore is a volatile SessionStore storing histories in a process
// local map. It is safe for concurrent access and best suited for tests or a
// single CLI process. Returned histories are copies.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Turn
	maxTurns int
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{MaxTurns: DefaultMaxTurns}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{sessions: make(map[string][]core.Turn), maxTurns: opts.MaxTurns}
}

// History implements core.SessionStore.
func (s *InMemoryStore) History(_ context.Context, sessionID string) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Turn(nil), s.sessions[sessionID]...), nil
}

// Append implements core.SessionStore.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, turns ...core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.sessions[sessionID], turns...)
	if s.maxTurns > 0 && len(h) > s.maxTurns {
		h = append([]core.Turn(nil), h[len(h)-s.maxTurns:]...)
	}
	s.sessions[sessionID] = h
	return nil
}

// Delete forgets a session.
func (s *InMemoryStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
