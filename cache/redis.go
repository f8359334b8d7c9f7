package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/redis/go-redis/v9"
)

var _ core.CacheStore = (*RedisStore)(nil)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// Prefix is prepended to every fingerprint to form the key.
	Prefix string
	Now    func() time.Time
}

// RedisStore keeps entries as JSON strings with a native Redis expiry, so
// eviction is handled by the server.
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{Prefix: "medguard:cache:", Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) key(fingerprint string) string { return s.opts.Prefix + fingerprint }

// Get implements core.CacheStore. redis.Nil is a miss.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (core.CacheEntry, bool, error) {
	data, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.CacheEntry{}, false, nil
	}
	if err != nil {
		return core.CacheEntry{}, false, fmt.Errorf("redis get %s: %w", fingerprint, err)
	}

	var entry core.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return core.CacheEntry{}, false, fmt.Errorf("decode cache entry %s: %w", fingerprint, err)
	}
	if entry.Expired(s.opts.Now()) {
		return core.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put implements core.CacheStore with SET ... PX. Entries that are already
// expired are not written.
func (s *RedisStore) Put(ctx context.Context, entry core.CacheEntry) error {
	ttl := entry.ExpiresAt.Sub(s.opts.Now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", entry.Fingerprint, err)
	}
	if err := s.client.Set(ctx, s.key(entry.Fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Fingerprint, err)
	}
	return nil
}
