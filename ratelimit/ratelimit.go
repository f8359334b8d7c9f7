// Package ratelimit enforces per-role request quotas with token buckets.
//
// Acquire either returns immediately, waits until a token matures, or, once
// the process-wide bound on queued waiters is exceeded, fails fast with a
// *core.ThrottledError carrying the suggested retry-after.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/medguard/core"
	"golang.org/x/time/rate"
)

// Quota is a token bucket configuration.
type Quota struct {
	// RPS is the steady refill rate in tokens per second.
	RPS float64
	// Burst is the bucket size.
	Burst int
}

// Options configures a Limiter.
type Options struct {
	Quotas map[core.Role]Quota

	// MaxWaiters bounds the number of callers queued for a token across all
	// roles. Callers beyond it are throttled.
	MaxWaiters int

	Now func() time.Time
}

// Limiter holds one bucket per role. It is safe for concurrent use.
type Limiter struct {
	buckets    map[core.Role]*rate.Limiter
	credits    map[core.Role]*credit
	maxWaiters int64
	waiters    atomic.Int64
	now        func() time.Time
}

// New creates a Limiter. Roles without a quota are unlimited.
func New(optFns ...func(o *Options)) *Limiter {
	opts := Options{
		Quotas: map[core.Role]Quota{
			core.RoleStudent: {RPS: 2, Burst: 5},
			core.RoleFaculty: {RPS: 5, Burst: 10},
		},
		MaxWaiters: 64,
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	l := &Limiter{
		buckets:    make(map[core.Role]*rate.Limiter, len(opts.Quotas)),
		credits:    make(map[core.Role]*credit, len(opts.Quotas)),
		maxWaiters: int64(opts.MaxWaiters),
		now:        opts.Now,
	}
	for role, q := range opts.Quotas {
		l.buckets[role] = rate.NewLimiter(rate.Limit(q.RPS), q.Burst)
		l.credits[role] = &credit{max: int64(q.Burst)}
	}
	return l
}

// credit holds tokens handed back by released permits. A rate.Limiter
// cannot take a spent token back, so returned tokens are kept here and
// consumed by Acquire before the bucket is touched. It never exceeds the
// bucket size.
type credit struct {
	n   atomic.Int64
	max int64
}

func (c *credit) take() bool {
	for {
		n := c.n.Load()
		if n <= 0 {
			return false
		}
		if c.n.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (c *credit) give() {
	for {
		n := c.n.Load()
		if n >= c.max {
			return
		}
		if c.n.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// Permit is a granted token. Release returns it to its role so the next
// Acquire can spend it; a permit that is never released stays consumed.
type Permit struct {
	credit *credit
	done   atomic.Bool
}

// Release returns the token. It is idempotent.
func (p *Permit) Release() {
	if p == nil || p.credit == nil || !p.done.CompareAndSwap(false, true) {
		return
	}
	p.credit.give()
}

// Available reports the returned tokens held for role.
func (l *Limiter) Available(role core.Role) int {
	c, ok := l.credits[role]
	if !ok {
		return 0
	}
	return int(c.n.Load())
}

// Waiters returns the number of callers currently queued.
func (l *Limiter) Waiters() int { return int(l.waiters.Load()) }

// Acquire obtains a token for role.
func (l *Limiter) Acquire(ctx context.Context, role core.Role) (*Permit, error) {
	bucket, ok := l.buckets[role]
	if !ok {
		return &Permit{}, nil
	}

	c := l.credits[role]
	if c.take() {
		return &Permit{credit: c}, nil
	}

	now := l.now()
	res := bucket.ReserveN(now, 1)
	if !res.OK() {
		return nil, &core.ThrottledError{Role: role, RetryAfter: time.Second}
	}

	delay := res.DelayFrom(now)
	if delay == 0 {
		return &Permit{credit: c}, nil
	}

	if l.waiters.Add(1) > l.maxWaiters {
		l.waiters.Add(-1)
		res.CancelAt(now)
		return nil, &core.ThrottledError{Role: role, RetryAfter: delay}
	}
	defer l.waiters.Add(-1)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return &Permit{credit: c}, nil
	case <-ctx.Done():
		res.Cancel()
		return nil, fmt.Errorf("acquire %s token: %w", role, ctx.Err())
	}
}
