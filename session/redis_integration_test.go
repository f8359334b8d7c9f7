package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "docker.io/redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, func(o *RedisOptions) {
		o.Prefix = "test:session:"
		o.MaxTurns = 4
		o.TTL = time.Minute
	})

	h, err := s.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, h)

	for i := range 3 {
		require.NoError(t, s.Append(ctx, "s1",
			core.Turn{Role: "user", Text: fmt.Sprintf("q%d", i)},
			core.Turn{Role: "assistant", Text: fmt.Sprintf("a%d", i)},
		))
	}

	h, err = s.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []core.Turn{
		{Role: "user", Text: "q1"}, {Role: "assistant", Text: "a1"},
		{Role: "user", Text: "q2"}, {Role: "assistant", Text: "a2"},
	}, h)

	ttl, err := client.TTL(ctx, "test:session:s1").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}
