package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/medguard/audit"
	"github.com/hupe1980/medguard/cache"
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/guard"
	"github.com/hupe1980/medguard/logging"
	"github.com/hupe1980/medguard/metrics"
	"github.com/hupe1980/medguard/model"
	"github.com/hupe1980/medguard/ratelimit"
	"github.com/hupe1980/medguard/retry"
)

// deadlineSlack is added to the retry policy's worst case when no explicit
// deadline is configured, to leave room for validation and storage.
const deadlineSlack = 5 * time.Second

// ErrNotInFlight is returned by Cancel for an unknown request id.
var ErrNotInFlight = errors.New("request not in flight")

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// Cache stores validated responses. Nil disables caching.
	Cache core.CacheStore
	// CacheTTL is the base lifetime of a cache entry, scaled per kind.
	CacheTTL time.Duration

	// Audit records every Guard Agent decision. Defaults to an in-memory sink.
	Audit core.AuditSink

	// Limiter enforces per-role quotas. Nil disables rate limiting.
	Limiter *ratelimit.Limiter

	Guard *guard.Agent
	Retry *retry.Controller

	// ContextProvider supplies document chunks for doc-qa requests that
	// arrive without context.
	ContextProvider core.ContextProvider

	// Deadline bounds one Submit call. Zero derives it from the retry policy.
	Deadline time.Duration

	// MaxProviderCalls is the per-request budget shared by generation and
	// correction. Zero means unlimited.
	MaxProviderCalls int

	Metrics metrics.Recorder
	Logger  logging.Logger
	Now     func() time.Time
}

// Orchestrator runs generation requests through the pipeline. Public methods
// are safe for concurrent use.
type Orchestrator struct {
	provider model.Provider
	opts     Options

	active map[string]*activeRun
	mu     sync.Mutex
}

type activeRun struct {
	cancel context.CancelFunc
}

// New constructs an Orchestrator for provider. Unset services default to
// in-memory implementations.
func New(provider model.Provider, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Cache:            cache.NewInMemoryStore(),
		CacheTTL:         time.Hour,
		Audit:            audit.NewInMemorySink(),
		Limiter:          ratelimit.New(),
		Guard:            guard.New(),
		Retry:            retry.New(),
		MaxProviderCalls: 3,
		Metrics:          metrics.Nop{},
		Logger:           logging.NoOpLogger{},
		Now:              time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Audit == nil {
		opts.Audit = audit.NewInMemorySink()
	}
	if opts.Guard == nil {
		opts.Guard = guard.New()
	}
	if opts.Retry == nil {
		opts.Retry = retry.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Deadline <= 0 {
		opts.Deadline = opts.Retry.MaxDuration() + deadlineSlack
	}

	return &Orchestrator{
		provider: provider,
		opts:     opts,
		active:   make(map[string]*activeRun),
	}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Submit runs req to a terminal outcome. It never returns an error; every
// failure is expressed as a Failed or Throttled outcome.
func (o *Orchestrator) Submit(ctx context.Context, req core.Request) core.Outcome {
	r := newRun(req, o.opts.MaxProviderCalls, o.runLogger(req), o.opts.Now())

	if err := req.Validate(); err != nil {
		return o.finish(r, StageFailed, core.Failed(req.ID, core.ErrorInvalidRequest, err))
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.Deadline)
	defer cancel()

	ctx, untrack := o.track(ctx, req.ID)
	defer untrack()

	return o.execute(ctx, r)
}

// Cancel aborts an in-flight request. Its Submit call returns Failed(canceled).
func (o *Orchestrator) Cancel(requestID string) error {
	o.mu.Lock()
	ar, ok := o.active[requestID]
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInFlight, requestID)
	}

	ar.cancel()

	return nil
}

// InFlight returns the number of requests currently running.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.active)
}

func (o *Orchestrator) track(ctx context.Context, requestID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	ar := &activeRun{cancel: cancel}

	o.mu.Lock()
	o.active[requestID] = ar
	o.mu.Unlock()

	return ctx, func() {
		cancel()
		o.mu.Lock()
		if o.active[requestID] == ar {
			delete(o.active, requestID)
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) runLogger(req core.Request) logging.Logger {
	if pl, ok := o.opts.Logger.(*logging.PipelineLogger); ok {
		return pl.WithComponent("pipeline").WithRequest(req.ID, req.UserID)
	}
	return o.opts.Logger
}

func (o *Orchestrator) execute(ctx context.Context, r *run) core.Outcome {
	if out, ok := o.acquire(ctx, r); !ok {
		return out
	}

	if v := o.opts.Guard.ScreenPrompt(r.req.Prompt); !v.IsValid {
		o.opts.Metrics.Verdict(v.Verdict)
		return o.block(ctx, r, core.BlockUnsafe, r.req.Prompt, "", v)
	}

	o.attachContext(ctx, r)
	if ctx.Err() != nil {
		return o.abort(ctx, r)
	}

	r.advance(StageCacheCheck)
	r.fingerprint = r.req.Fingerprint()
	if out, ok := o.lookup(ctx, r); ok {
		return out
	}

	return o.generateAndValidate(ctx, r, model.BuildPrompt(r.req))
}

func (o *Orchestrator) acquire(ctx context.Context, r *run) (core.Outcome, bool) {
	if o.opts.Limiter == nil {
		return core.Outcome{}, true
	}

	permit, err := o.opts.Limiter.Acquire(ctx, r.req.Role)
	if err != nil {
		var te *core.ThrottledError
		if errors.As(err, &te) {
			o.opts.Metrics.Throttled(r.req.Role)
			return o.finish(r, StageThrottled, core.Throttled(r.req.ID, te.RetryAfter)), false
		}
		return o.abort(ctx, r), false
	}

	r.permit = permit

	return core.Outcome{}, true
}

func (o *Orchestrator) attachContext(ctx context.Context, r *run) {
	if r.req.Kind != core.KindDocQA || o.opts.ContextProvider == nil || len(r.req.Context()) > 0 {
		return
	}

	turns, err := o.opts.ContextProvider.Retrieve(ctx, r.req)
	if err != nil {
		r.log.Warn("Document context retrieval failed, answering without excerpts", "error", err)
		return
	}

	r.req = r.req.WithContext(turns)
}

func (o *Orchestrator) lookup(ctx context.Context, r *run) (core.Outcome, bool) {
	if o.opts.Cache == nil {
		return core.Outcome{}, false
	}

	entry, ok, err := o.opts.Cache.Get(ctx, r.fingerprint)
	if err != nil {
		o.opts.Metrics.CacheLookup(metrics.CacheError)
		r.log.Warn("Cache lookup failed, treating as miss", "error", err)
		return core.Outcome{}, false
	}

	if !ok || entry.Kind != r.req.Kind || entry.Expired(o.opts.Now()) ||
		!entry.Validation.IsValid || !r.req.Role.CanReuse(entry.Role) {
		o.opts.Metrics.CacheLookup(metrics.CacheMiss)
		return core.Outcome{}, false
	}

	o.opts.Metrics.CacheLookup(metrics.CacheHit)

	return o.finish(r, StageApproved, core.Approved(r.req.ID, entry.Content, entry.Validation, entry.Corrected, true)), true
}

func (o *Orchestrator) generateAndValidate(ctx context.Context, r *run, p model.Prompt) core.Outcome {
	for {
		r.advance(StageGenerating)

		content, err := o.generate(ctx, r, p)
		if err != nil {
			if ctx.Err() != nil {
				return o.abort(ctx, r)
			}
			return o.finish(r, StageFailed, core.Failed(r.req.ID, core.ErrorModelUnavailable, err))
		}
		if r.corrections == 0 {
			r.original = content
		}

		r.advance(StageValidating)

		v := o.opts.Guard.Validate(content, r.req.Context(), r.req.Role)
		o.opts.Metrics.Verdict(v.Verdict)

		switch v.Verdict {
		case core.VerdictPass:
			return o.approve(ctx, r, content, v)
		case core.VerdictUnsafe:
			return o.block(ctx, r, core.BlockUnsafe, r.original, content, v)
		case core.VerdictInappropriate:
			return o.block(ctx, r, core.BlockNotPermitted, r.original, content, v)
		case core.VerdictInaccurate:
		}

		r.advance(StageCorrecting)

		if !r.canCorrect() {
			return o.block(ctx, r, core.BlockUncorrectable, r.original, content, v)
		}

		r.corrections++
		o.opts.Metrics.Correction()
		r.log.Info("Correcting inaccurate content", "confidence", v.Confidence, "issues", v.Issues)

		p = model.CorrectionPrompt(r.req, content, v.Issues)
	}
}

type modelCallLogger interface {
	LogModelCall(provider string, attempt int, dur time.Duration, success bool, err error)
}

func (o *Orchestrator) generate(ctx context.Context, r *run, p model.Prompt) (string, error) {
	res, err := o.opts.Retry.Do(ctx, r.budget, func(ctx context.Context) (string, error) {
		return o.provider.Generate(ctx, p)
	})

	provider := o.provider.Info().Provider
	for _, a := range res.Attempts {
		a.Number = len(r.attempts) + 1
		r.attempts = append(r.attempts, a)
		o.opts.Metrics.ObserveAttempt(a)

		if ml, ok := r.log.(modelCallLogger); ok {
			var aerr error
			if a.Error != "" {
				aerr = errors.New(a.Error)
			}
			ml.LogModelCall(provider, a.Number, a.Latency, a.Outcome == core.AttemptSuccess, aerr)
		}
	}

	return res.Text, err
}

func (o *Orchestrator) approve(ctx context.Context, r *run, content string, v core.ValidationResult) core.Outcome {
	if ctx.Err() != nil {
		return o.abort(ctx, r)
	}

	corrected := r.corrections > 0
	action := core.ActionApproved
	if corrected {
		action = core.ActionCorrected
		v.CorrectedContent = content
	}

	now := o.opts.Now()

	if o.opts.Cache != nil {
		entry := core.CacheEntry{
			Fingerprint: r.fingerprint,
			Kind:        r.req.Kind,
			Role:        r.req.Role,
			Content:     content,
			Validation:  v,
			Corrected:   corrected,
			StoredAt:    now,
			ExpiresAt:   now.Add(r.req.Kind.CacheTTL(o.opts.CacheTTL)),
		}
		if err := o.opts.Cache.Put(ctx, entry); err != nil {
			r.log.Warn("Cache write failed", "error", err)
		}
	}

	entry := core.NewAuditEntry(r.req, action, r.original, v, now)
	entry.FinalContent = content
	if err := o.opts.Audit.Append(ctx, entry); err != nil {
		o.opts.Metrics.AuditFailure(action)
		r.log.Error("Audit append failed for approved content", "action", action, "error", err)
	}

	return o.finish(r, StageApproved, core.Approved(r.req.ID, content, v, corrected, false))
}

// block records the refusal before returning it. A refusal that cannot be
// recorded is reported as Failed(audit_unavailable) instead.
func (o *Orchestrator) block(
	ctx context.Context,
	r *run,
	reason core.BlockReason,
	original, final string,
	v core.ValidationResult,
) core.Outcome {
	entry := core.NewAuditEntry(r.req, core.ActionBlocked, original, v, o.opts.Now())
	entry.FinalContent = final
	entry.Reasons = append([]string{string(reason)}, v.Issues...)

	if err := o.opts.Audit.Append(ctx, entry); err != nil {
		o.opts.Metrics.AuditFailure(core.ActionBlocked)
		if ctx.Err() != nil {
			return o.abort(ctx, r)
		}
		return o.finish(r, StageFailed, core.Failed(r.req.ID, core.ErrorAuditUnavailable,
			fmt.Errorf("%w: %w", core.ErrAuditUnavailable, err)))
	}

	return o.finish(r, StageBlocked, core.Blocked(r.req.ID, reason, v.Issues, entry.ID))
}

// abort ends a run whose context is done. The limiter permit is handed back
// and nothing is written to the cache.
func (o *Orchestrator) abort(ctx context.Context, r *run) core.Outcome {
	r.permit.Release()

	kind := core.ErrorCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = core.ErrorTimeout
	}

	return o.finish(r, StageFailed, core.Failed(r.req.ID, kind, fmt.Errorf("request %s: %w", r.req.ID, ctx.Err())))
}

type outcomeLogger interface {
	LogOutcome(status string, dur time.Duration, attrs map[string]any)
}

func (o *Orchestrator) finish(r *run, to Stage, out core.Outcome) core.Outcome {
	if r.stage.Terminal() {
		return r.outcome
	}

	if err := r.transition(to); err != nil {
		r.log.Error("Rejected pipeline transition", "error", err)
	}

	out.Attempts = append([]core.Attempt(nil), r.attempts...)
	r.outcome = out

	dur := o.opts.Now().Sub(r.start)
	o.opts.Metrics.ObserveOutcome(r.req.Kind, out, dur)

	attrs := map[string]any{
		"kind":     r.req.Kind,
		"attempts": len(out.Attempts),
	}
	switch out.Status {
	case core.StatusApproved:
		attrs["cached"] = out.Cached
		attrs["corrected"] = out.Corrected
		attrs["uncertain"] = out.Uncertain
	case core.StatusBlocked:
		attrs["block_reason"] = out.BlockReason
		attrs["reasons"] = out.Reasons
	case core.StatusFailed:
		attrs["error_kind"] = out.ErrorKind
		if out.Err != nil {
			attrs["error"] = out.Err.Error()
		}
	case core.StatusThrottled:
		attrs["retry_after"] = out.RetryAfter
	}

	if ol, ok := r.log.(outcomeLogger); ok {
		ol.LogOutcome(string(out.Status), dur, attrs)
	} else {
		args := []any{"status", out.Status, "duration", dur}
		for k, v := range attrs {
			args = append(args, k, v)
		}
		r.log.Info("Pipeline outcome", args...)
	}

	return out
}
