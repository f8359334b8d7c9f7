package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Prefix   string
	MaxTurns int
	// TTL expires idle sessions. Zero keeps them until deleted.
	TTL time.Duration
}

// RedisStore keeps each session as a Redis list of JSON encoded turns, so
// several processes can continue the same conversation.
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
}

var _ core.SessionStore = (*RedisStore)(nil)

// NewRedisStore creates a store on client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{Prefix: "medguard:session:", MaxTurns: DefaultMaxTurns, TTL: 24 * time.Hour}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) key(sessionID string) string { return s.opts.Prefix + sessionID }

// History implements core.SessionStore.
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]core.Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	turns := make([]core.Turn, 0, len(raw))
	for _, r := range raw {
		var t core.Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
		}
		turns = append(turns, t)
	}

	return turns, nil
}

// Append implements core.SessionStore. The push, trim and expiry run in one
// transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...core.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		values = append(values, b)
	}

	key := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, values...)
		if s.opts.MaxTurns > 0 {
			p.LTrim(ctx, key, int64(-s.opts.MaxTurns), -1)
		}
		if s.opts.TTL > 0 {
			p.Expire(ctx, key, s.opts.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append session %s: %w", sessionID, err)
	}

	return nil
}
