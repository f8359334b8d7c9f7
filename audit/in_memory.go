package audit

import (
	"context"
	"sync"

	"github.com/hupe1980/medguard/core"
)

var _ core.AuditSink = (*InMemorySink)(nil)

// InMemorySink keeps entries in a process local slice.
type InMemorySink struct {
	mu      sync.RWMutex
	entries []core.AuditEntry
}

// NewInMemorySink constructs an empty sink.
func NewInMemorySink() *InMemorySink { return &InMemorySink{} }

// Append implements core.AuditSink.
func (s *InMemorySink) Append(_ context.Context, entry core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneEntry(entry))
	return nil
}

// Entries returns a copy of all entries in append order.
func (s *InMemorySink) Entries() []core.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.AuditEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// ByRequest returns the entries recorded for requestID.
func (s *InMemorySink) ByRequest(requestID string) []core.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.AuditEntry
	for _, e := range s.entries {
		if e.RequestID == requestID {
			out = append(out, cloneEntry(e))
		}
	}
	return out
}

// Len returns the number of entries.
func (s *InMemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneEntry(e core.AuditEntry) core.AuditEntry {
	e.Validation = e.Validation.Clone()
	e.Reasons = append([]string(nil), e.Reasons...)
	return e
}
