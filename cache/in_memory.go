package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/medguard/core"
)

var _ core.CacheStore = (*InMemoryStore)(nil)

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// InMemoryStore is a volatile CacheStore backed by sync.Map. There is no
// store-wide lock: readers and writers of different keys never contend, and
// concurrent writers of one key resolve to the last write.
type InMemoryStore struct {
	entries sync.Map // fingerprint -> *core.CacheEntry
	now     func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	Now func() time.Time
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{now: opts.Now}
}

// Get returns the live entry for fingerprint. Expired entries are evicted
// and reported as a miss.
func (s *InMemoryStore) Get(_ context.Context, fingerprint string) (core.CacheEntry, bool, error) {
	v, ok := s.entries.Load(fingerprint)
	if !ok {
		s.misses.Add(1)
		return core.CacheEntry{}, false, nil
	}
	entry := v.(*core.CacheEntry)
	if entry.Expired(s.now()) {
		// Only remove the exact value we saw; a concurrent Put wins.
		if s.entries.CompareAndDelete(fingerprint, v) {
			s.evictions.Add(1)
		}
		s.misses.Add(1)
		return core.CacheEntry{}, false, nil
	}
	s.hits.Add(1)
	return cloneEntry(*entry), true, nil
}

// Put upserts entry under its fingerprint.
func (s *InMemoryStore) Put(_ context.Context, entry core.CacheEntry) error {
	e := cloneEntry(entry)
	s.entries.Store(entry.Fingerprint, &e)
	return nil
}

// Sweep evicts every expired entry and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	now := s.now()
	removed := 0
	s.entries.Range(func(k, v any) bool {
		if v.(*core.CacheEntry).Expired(now) && s.entries.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	s.evictions.Add(uint64(removed))
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (s *InMemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

// Len returns the number of stored entries, live or expired.
func (s *InMemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stats returns the current counters.
func (s *InMemoryStore) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
}

func cloneEntry(e core.CacheEntry) core.CacheEntry {
	e.Validation = e.Validation.Clone()
	return e
}
