// Package cache provides core.CacheStore implementations for validated
// pipeline responses: a process local InMemoryStore and a Redis backed
// RedisStore for deployments with several pipeline replicas.
//
// Stores only ever receive content that already passed the Guard Agent. Puts
// are idempotent upserts (last writer wins) and expired entries read as misses.
package cache
