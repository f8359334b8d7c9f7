package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withQuota(role core.Role, q Quota, maxWaiters int) func(o *Options) {
	return func(o *Options) {
		o.Quotas = map[core.Role]Quota{role: q}
		o.MaxWaiters = maxWaiters
	}
}

func TestAcquire_BurstIsImmediate(t *testing.T) {
	l := New()
	start := time.Now()
	for i := 0; i < 5; i++ {
		p, err := l.Acquire(context.Background(), core.RoleStudent)
		require.NoError(t, err)
		require.NotNil(t, p)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquire_BlocksUntilTokenMatures(t *testing.T) {
	l := New(withQuota(core.RoleStudent, Quota{RPS: 20, Burst: 1}, 4))

	_, err := l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)

	start := time.Now()
	_, err = l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, l.Waiters())
}

func TestAcquire_ThrottlesBeyondWaiterBound(t *testing.T) {
	l := New(withQuota(core.RoleStudent, Quota{RPS: 1, Burst: 1}, 0))

	_, err := l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), core.RoleStudent)
	var te *core.ThrottledError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, core.RoleStudent, te.Role)
	assert.Greater(t, te.RetryAfter, 500*time.Millisecond)
	assert.LessOrEqual(t, te.RetryAfter, time.Second)
}

func TestAcquire_CancelReleasesReservation(t *testing.T) {
	l := New(withQuota(core.RoleStudent, Quota{RPS: 0.5, Burst: 1}, 8))

	_, err := l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, core.RoleStudent)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, l.Waiters())

	// The canceled reservation was returned, so the next token is still
	// about two seconds away rather than four.
	l.maxWaiters = 0
	_, err = l.Acquire(context.Background(), core.RoleStudent)
	var te *core.ThrottledError
	require.ErrorAs(t, err, &te)
	assert.LessOrEqual(t, te.RetryAfter, 2*time.Second)
}

func TestAcquire_UnknownRoleIsUnlimited(t *testing.T) {
	l := New(withQuota(core.RoleStudent, Quota{RPS: 1, Burst: 1}, 0))
	for i := 0; i < 10; i++ {
		_, err := l.Acquire(context.Background(), core.RoleFaculty)
		require.NoError(t, err)
	}
}

func TestAcquire_RolesAreIndependent(t *testing.T) {
	l := New(func(o *Options) {
		o.Quotas = map[core.Role]Quota{
			core.RoleStudent: {RPS: 1, Burst: 1},
			core.RoleFaculty: {RPS: 1, Burst: 1},
		}
		o.MaxWaiters = 0
	})
	_, err := l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)
	_, err = l.Acquire(context.Background(), core.RoleFaculty)
	require.NoError(t, err)
}

func TestAcquire_ConcurrentWaitersBounded(t *testing.T) {
	l := New(withQuota(core.RoleStudent, Quota{RPS: 1, Burst: 1}, 2))
	_, err := l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		throttled int
		timedOut  int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Acquire(ctx, core.RoleStudent)
			mu.Lock()
			defer mu.Unlock()
			var te *core.ThrottledError
			switch {
			case errors.As(err, &te):
				throttled++
			case errors.Is(err, context.DeadlineExceeded):
				timedOut++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, throttled+timedOut)
	assert.LessOrEqual(t, timedOut, 2)
	assert.Equal(t, 0, l.Waiters())
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	l := New()
	p, err := l.Acquire(context.Background(), core.RoleFaculty)
	require.NoError(t, err)
	p.Release()
	p.Release()
	assert.Equal(t, 1, l.Available(core.RoleFaculty))

	var nilPermit *Permit
	nilPermit.Release()
}

func TestPermit_ReleaseReturnsSpentToken(t *testing.T) {
	l := New(withQuota(core.RoleStudent, Quota{RPS: 0.01, Burst: 1}, 0))

	p, err := l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), core.RoleStudent)
	var te *core.ThrottledError
	require.ErrorAs(t, err, &te)

	p.Release()
	assert.Equal(t, 1, l.Available(core.RoleStudent))

	p2, err := l.Acquire(context.Background(), core.RoleStudent)
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, 0, l.Available(core.RoleStudent))

	_, err = l.Acquire(context.Background(), core.RoleStudent)
	require.ErrorAs(t, err, &te)
}

func TestPermit_CreditNeverExceedsBurst(t *testing.T) {
	l := New(withQuota(core.RoleStudent, Quota{RPS: 0.01, Burst: 2}, 0))

	var permits []*Permit
	for i := 0; i < 2; i++ {
		p, err := l.Acquire(context.Background(), core.RoleStudent)
		require.NoError(t, err)
		permits = append(permits, p)
	}
	for _, p := range permits {
		p.Release()
	}
	(&Permit{credit: l.credits[core.RoleStudent]}).Release()

	assert.Equal(t, 2, l.Available(core.RoleStudent))
}
