package core

import (
	"context"
	"time"
)

// CacheEntry is a previously validated response keyed by request fingerprint.
type CacheEntry struct {
	Fingerprint string           `json:"fingerprint"`
	Kind        Kind             `json:"kind"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Validation  ValidationResult `json:"validation"`
	Corrected   bool             `json:"corrected,omitempty"`
	StoredAt    time.Time        `json:"stored_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// Expired reports whether the entry must be treated as a miss at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStore persists validated responses. Implementations must be safe for
// concurrent use; Put is an idempotent upsert (last writer wins). Get returns
// ok=false for missing or expired entries.
type CacheStore interface {
	Get(ctx context.Context, fingerprint string) (CacheEntry, bool, error)
	Put(ctx context.Context, entry CacheEntry) error
}
