// Package retry wraps one logical model call with bounded exponential-backoff
// retry. Only retryable transport errors are retried; every other failure
// stops immediately. The number of provider calls is additionally capped by a
// per-request core.CallBudget shared with the correction loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/logging"
)

// maxRandomization keeps jittered waits strictly increasing while doubling:
// (1+f)·d < (1-f)·2d holds for every f < 1/3.
const maxRandomization = 0.33

// Policy configures the controller.
type Policy struct {
	// MaxAttempts is the number of provider calls per Do, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps every wait.
	MaxDelay time.Duration

	// AttemptTimeout bounds a single provider call.
	AttemptTimeout time.Duration

	// Jitter is the randomization factor applied to each wait. Values at or
	// above 1/3 are clamped.
	Jitter float64

	// Sleep waits for d or until ctx is done. Tests replace it to avoid real
	// delays.
	Sleep func(ctx context.Context, d time.Duration) error

	// Now returns the current time.
	Now func() time.Time

	// OnAttempt is invoked after every attempt, e.g. to record metrics.
	OnAttempt func(core.Attempt)

	// Logger receives one entry per failed attempt.
	Logger logging.Logger
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		AttemptTimeout: 30 * time.Second,
		Jitter:         0.2,
		Sleep:          sleepContext,
		Now:            time.Now,
		Logger:         logging.NoOpLogger{},
	}
}

// Controller executes calls under a Policy. It holds no per-call state and is
// safe for concurrent use.
type Controller struct {
	policy Policy
}

// New creates a Controller with DefaultPolicy adjusted by optFns.
func New(optFns ...func(o *Policy)) *Controller {
	p := DefaultPolicy()
	for _, fn := range optFns {
		fn(&p)
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > maxRandomization {
		p.Jitter = maxRandomization
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Logger == nil {
		p.Logger = logging.NoOpLogger{}
	}
	return &Controller{policy: p}
}

// Policy returns the effective policy.
func (c *Controller) Policy() Policy { return c.policy }

// MaxDuration is an upper bound on the wall time of one Do call: every
// attempt timing out plus the largest possible waits between them.
func (c *Controller) MaxDuration() time.Duration {
	total := time.Duration(c.policy.MaxAttempts) * c.policy.AttemptTimeout
	d := c.policy.BaseDelay
	for n := 1; n < c.policy.MaxAttempts; n++ {
		w := time.Duration(float64(d) * (1 + c.policy.Jitter))
		if w > c.policy.MaxDelay {
			w = c.policy.MaxDelay
		}
		total += w
		d *= 2
	}
	return total
}

// Func performs one provider call.
type Func func(ctx context.Context) (string, error)

// Result carries the completion and the attempts made to obtain it.
type Result struct {
	Text     string
	Attempts []core.Attempt
}

// Do runs fn until it succeeds, fails with a non-retryable error, the attempt
// cap or the budget is reached, or ctx is done. Attempts are returned in every
// case. Terminal provider failures wrap core.ErrModelUnavailable; ctx
// expiry is returned as the ctx error.
func (c *Controller) Do(ctx context.Context, budget *core.CallBudget, fn Func) (Result, error) {
	var (
		res     Result
		lastErr error
		waits   = c.newBackOff()
	)

	for n := 1; n <= c.policy.MaxAttempts; n++ {
		var wait time.Duration
		if n > 1 {
			wait = c.nextWait(waits)
			if err := c.policy.Sleep(ctx, wait); err != nil {
				return res, err
			}
		}

		if budget != nil {
			if err := budget.Spend(); err != nil {
				if lastErr == nil {
					return res, fmt.Errorf("%w: %w", core.ErrModelUnavailable, err)
				}
				return res, fmt.Errorf("%w: %w: %w", core.ErrModelUnavailable, err, lastErr)
			}
		}

		text, attempt, err := c.attempt(ctx, n, wait, fn)
		res.Attempts = append(res.Attempts, attempt)
		if c.policy.OnAttempt != nil {
			c.policy.OnAttempt(attempt)
		}
		if err == nil {
			res.Text = text
			return res, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		lastErr = err
		c.policy.Logger.Warn("Model call attempt failed",
			"attempt", n, "max_attempts", c.policy.MaxAttempts, "retryable", core.IsRetryable(err), "error", err)

		if !core.IsRetryable(err) {
			return res, fmt.Errorf("%w: %w", core.ErrModelUnavailable, err)
		}
	}

	return res, fmt.Errorf("%w after %d attempts: %w", core.ErrModelUnavailable, len(res.Attempts), lastErr)
}

func (c *Controller) attempt(ctx context.Context, n int, wait time.Duration, fn Func) (string, core.Attempt, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()

	start := c.policy.Now()
	text, err := fn(attemptCtx)
	a := core.Attempt{
		Number:    n,
		StartedAt: start,
		Latency:   c.policy.Now().Sub(start),
		Wait:      wait,
		Outcome:   core.AttemptSuccess,
	}
	if err == nil {
		return text, a, nil
	}

	// An unclassified deadline from the per-attempt timeout is a transport
	// timeout as long as the caller's context is still alive.
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !isTransport(err) {
		err = core.NewTransportError("", core.TransportTimeout, err)
	}

	a.Error = err.Error()
	a.Outcome = outcomeFor(ctx, err)
	return "", a, err
}

func outcomeFor(ctx context.Context, err error) core.AttemptOutcome {
	if ctx.Err() != nil {
		return core.AttemptCanceled
	}
	var te *core.TransportError
	if errors.As(err, &te) {
		switch te.Kind {
		case core.TransportTimeout:
			return core.AttemptTimeout
		case core.TransportRateLimit:
			return core.AttemptRateLimited
		}
	}
	return core.AttemptProviderError
}

func isTransport(err error) bool {
	var te *core.TransportError
	return errors.As(err, &te)
}

func (c *Controller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.BaseDelay
	b.Multiplier = 2
	b.MaxInterval = c.policy.MaxDelay
	b.RandomizationFactor = c.policy.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Controller) nextWait(b *backoff.ExponentialBackOff) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop || d > c.policy.MaxDelay {
		d = c.policy.MaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
