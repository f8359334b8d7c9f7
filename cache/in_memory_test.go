package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now atomic.Int64 }

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.now.Store(t.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time          { return time.Unix(0, c.now.Load()) }
func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func entry(fp string, now time.Time, ttl time.Duration) core.CacheEntry {
	return core.CacheEntry{
		Fingerprint: fp,
		Kind:        core.KindChat,
		Role:        core.RoleStudent,
		Content:     "content " + fp,
		Validation:  core.ValidationResult{IsValid: true, Confidence: 0.9, Verdict: core.VerdictPass},
		StoredAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestInMemoryStore_PutGet(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := NewInMemoryStore(func(o *InMemoryOptions) { o.Now = clock.Now })
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, entry("fp", clock.Now(), time.Minute)))
	got, ok, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "content fp", got.Content)

	assert.Equal(t, Stats{Hits: 1, Misses: 1}, s.Stats())
}

func TestInMemoryStore_ExpiredIsMissAndEvicted(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := NewInMemoryStore(func(o *InMemoryOptions) { o.Now = clock.Now })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, entry("fp", clock.Now(), time.Minute)))
	clock.Advance(time.Minute)

	_, ok, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, uint64(1), s.Stats().Evictions)
}

func TestInMemoryStore_LastWriterWins(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	first := entry("fp", now, time.Hour)
	second := entry("fp", now, time.Hour)
	second.Content = "newer"

	require.NoError(t, s.Put(ctx, first))
	require.NoError(t, s.Put(ctx, second))

	got, ok, _ := s.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, "newer", got.Content)
	assert.Equal(t, 1, s.Len())
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	e := entry("fp", time.Now(), time.Hour)
	e.Validation.Issues = []string{"x"}
	require.NoError(t, s.Put(ctx, e))

	e.Validation.Issues[0] = "mutated"
	got, _, _ := s.Get(ctx, "fp")
	assert.Equal(t, []string{"x"}, got.Validation.Issues)

	got.Validation.Issues[0] = "mutated"
	again, _, _ := s.Get(ctx, "fp")
	assert.Equal(t, []string{"x"}, again.Validation.Issues)
}

func TestInMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := NewInMemoryStore(func(o *InMemoryOptions) { o.Now = clock.Now })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, entry("short", clock.Now(), time.Second)))
	require.NoError(t, s.Put(ctx, entry("long", clock.Now(), time.Hour)))
	clock.Advance(time.Minute)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestInMemoryStore_Janitor(t *testing.T) {
	clock := newFakeClock(time.Now())
	s := NewInMemoryStore(func(o *InMemoryOptions) { o.Now = clock.Now })
	require.NoError(t, s.Put(context.Background(), entry("fp", clock.Now(), time.Second)))
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := fmt.Sprintf("fp-%d", i%4)
			for j := 0; j < 100; j++ {
				_ = s.Put(ctx, entry(fp, now, time.Hour))
				_, _, _ = s.Get(ctx, fp)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, s.Len())
	st := s.Stats()
	assert.Equal(t, uint64(32*100), st.Hits+st.Misses)
}
