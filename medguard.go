// Package medguard provides a high-level façade over the generation and
// validation pipeline. Most applications interact with this package by:
//  1. Creating a MedGuard via New() with a model provider (optionally
//     overriding the default in-memory cache and audit sink)
//  2. Submitting requests synchronously (Submit, Generate) or asynchronously
//     (SubmitAsync), or holding a conversation with Chat
//
// The façade delegates orchestration to pipeline.Orchestrator. All defaults
// are safe for local development and testing; production deployments
// typically supply a shared cache, a durable audit sink and a structured
// logger.
package medguard

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/medguard/audit"
	"github.com/hupe1980/medguard/cache"
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/guard"
	"github.com/hupe1980/medguard/logging"
	"github.com/hupe1980/medguard/metrics"
	"github.com/hupe1980/medguard/model"
	"github.com/hupe1980/medguard/pipeline"
	"github.com/hupe1980/medguard/ratelimit"
	"github.com/hupe1980/medguard/retry"
	"github.com/hupe1980/medguard/session"
)

// Options configures the MedGuard instance.
type Options struct {
	// Stores (default to in-memory implementations if not provided)
	Cache core.CacheStore
	Audit core.AuditSink

	// Sessions keeps chat history for Chat.
	Sessions core.SessionStore

	// CacheTTL is the base lifetime of cached responses.
	CacheTTL time.Duration

	// Limiter enforces per-role quotas. Defaults to ratelimit.New().
	Limiter *ratelimit.Limiter

	// Guard validates generated content. Defaults to the lexicon screens.
	Guard *guard.Agent

	// RetryPolicy adjusts the retry controller defaults.
	RetryPolicy func(p *retry.Policy)

	// ContextProvider supplies document chunks for doc-qa requests.
	ContextProvider core.ContextProvider

	// Deadline bounds each request. Zero derives it from the retry policy.
	Deadline time.Duration

	// MaxProviderCalls caps provider calls per request across correction.
	MaxProviderCalls int

	Metrics metrics.Recorder

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// MedGuard is the high-level façade over the pipeline.
type MedGuard struct {
	opts         Options
	orchestrator *pipeline.Orchestrator
}

// New creates a MedGuard answering with provider.
func New(provider model.Provider, optFns ...func(o *Options)) *MedGuard {
	opts := Options{
		Cache:            cache.NewInMemoryStore(),
		Audit:            audit.NewInMemorySink(),
		Sessions:         session.NewInMemoryStore(),
		CacheTTL:         time.Hour,
		Limiter:          ratelimit.New(),
		Guard:            guard.New(),
		MaxProviderCalls: 3,
		Metrics:          metrics.Nop{},
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}

	retryFns := []func(p *retry.Policy){func(p *retry.Policy) { p.Logger = opts.Logger }}
	if opts.RetryPolicy != nil {
		retryFns = append(retryFns, opts.RetryPolicy)
	}

	o := pipeline.New(provider, func(o *pipeline.Options) {
		o.Cache = opts.Cache
		o.CacheTTL = opts.CacheTTL
		o.Audit = opts.Audit
		o.Limiter = opts.Limiter
		o.Guard = opts.Guard
		o.Retry = retry.New(retryFns...)
		o.ContextProvider = opts.ContextProvider
		o.Deadline = opts.Deadline
		o.MaxProviderCalls = opts.MaxProviderCalls
		o.Metrics = opts.Metrics
		o.Logger = opts.Logger
	})

	return &MedGuard{opts: opts, orchestrator: o}
}

// Orchestrator exposes the underlying pipeline.
func (m *MedGuard) Orchestrator() *pipeline.Orchestrator { return m.orchestrator }

// Submit runs req to its terminal outcome.
func (m *MedGuard) Submit(ctx context.Context, req core.Request) core.Outcome {
	return m.orchestrator.Submit(ctx, req)
}

// Generate builds a request from kind and prompt and submits it.
func (m *MedGuard) Generate(
	ctx context.Context,
	kind core.Kind,
	prompt string,
	optFns ...func(o *core.RequestOptions),
) core.Outcome {
	return m.Submit(ctx, core.NewRequest(kind, prompt, optFns...))
}

// Chat submits prompt as the next turn of a chat session. The session's
// history is sent as context and, when the answer is approved, the exchange
// is appended to it. Blocked or failed turns leave the history untouched.
func (m *MedGuard) Chat(
	ctx context.Context,
	sessionID string,
	prompt string,
	optFns ...func(o *core.RequestOptions),
) (core.Outcome, error) {
	history, err := m.opts.Sessions.History(ctx, sessionID)
	if err != nil {
		return core.Outcome{}, fmt.Errorf("load chat history: %w", err)
	}

	optFns = append(optFns, func(o *core.RequestOptions) { o.Context = history })
	out := m.Generate(ctx, core.KindChat, prompt, optFns...)
	if !out.IsApproved() {
		return out, nil
	}

	if err := m.opts.Sessions.Append(ctx, sessionID,
		core.Turn{Role: model.RoleUser, Text: prompt},
		core.Turn{Role: model.RoleAssistant, Text: out.Content},
	); err != nil {
		return out, fmt.Errorf("save chat history: %w", err)
	}

	return out, nil
}

// SubmitAsync runs req in a new goroutine. The returned channel receives
// exactly one outcome and is then closed.
func (m *MedGuard) SubmitAsync(ctx context.Context, req core.Request) <-chan core.Outcome {
	ch := make(chan core.Outcome, 1)

	go func() {
		defer close(ch)
		ch <- m.orchestrator.Submit(ctx, req)
	}()

	return ch
}

// Cancel aborts an in-flight request by id.
func (m *MedGuard) Cancel(requestID string) error { return m.orchestrator.Cancel(requestID) }
