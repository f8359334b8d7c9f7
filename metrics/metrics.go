// Package metrics exposes pipeline observability as Prometheus collectors.
//
// The pipeline depends on the small Recorder interface; Collector implements
// it on a dedicated registry and Nop discards everything.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Recorder receives pipeline events.
type Recorder interface {
	ObserveOutcome(kind core.Kind, o core.Outcome, d time.Duration)
	ObserveAttempt(a core.Attempt)
	CacheLookup(result string)
	Verdict(v core.Verdict)
	Correction()
	Throttled(role core.Role)
	AuditFailure(action core.AuditAction)
}

// Nop is a Recorder that does nothing.
type Nop struct{}

func (Nop) ObserveOutcome(core.Kind, core.Outcome, time.Duration) {}
func (Nop) ObserveAttempt(core.Attempt)                           {}
func (Nop) CacheLookup(string)                                    {}
func (Nop) Verdict(core.Verdict)                                  {}
func (Nop) Correction()                                           {}
func (Nop) Throttled(core.Role)                                   {}
func (Nop) AuditFailure(core.AuditAction)                         {}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Collector)(nil)
)

// Collector records pipeline metrics on its own registry so several
// pipelines (and tests) never collide on the global default registry.
type Collector struct {
	registry *prometheus.Registry

	outcomes        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attempts        *prometheus.CounterVec
	attemptLatency  prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	verdicts        *prometheus.CounterVec
	corrections     prometheus.Counter
	throttles       *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
}

// New creates a Collector with a fresh registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medguard_outcomes_total",
				Help: "Terminal pipeline outcomes by request kind, status and error kind.",
			},
			[]string{"kind", "status", "error_kind"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "medguard_request_duration_seconds",
				Help:    "Wall time from submit to terminal outcome.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"kind"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medguard_provider_attempts_total",
				Help: "Provider call attempts by outcome.",
			},
			[]string{"outcome"},
		),
		attemptLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "medguard_provider_attempt_latency_seconds",
				Help:    "Latency of single provider calls.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medguard_cache_lookups_total",
				Help: "Cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medguard_guard_verdicts_total",
				Help: "Guard Agent verdicts.",
			},
			[]string{"verdict"},
		),
		corrections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "medguard_corrections_total",
				Help: "Correction re-generations started.",
			},
		),
		throttles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medguard_throttled_total",
				Help: "Requests rejected by the rate limiter by role.",
			},
			[]string{"role"},
		),
		auditFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medguard_audit_failures_total",
				Help: "Audit appends that failed, by action.",
			},
			[]string{"action"},
		),
	}
}

// ObserveOutcome records a terminal outcome.
func (c *Collector) ObserveOutcome(kind core.Kind, o core.Outcome, d time.Duration) {
	c.outcomes.WithLabelValues(string(kind), string(o.Status), string(o.ErrorKind)).Inc()
	c.requestDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// ObserveAttempt records one provider call.
func (c *Collector) ObserveAttempt(a core.Attempt) {
	c.attempts.WithLabelValues(string(a.Outcome)).Inc()
	c.attemptLatency.Observe(a.Latency.Seconds())
}

// CacheLookup records a cache lookup result.
func (c *Collector) CacheLookup(result string) { c.cacheLookups.WithLabelValues(result).Inc() }

// Verdict records a Guard Agent verdict.
func (c *Collector) Verdict(v core.Verdict) { c.verdicts.WithLabelValues(string(v)).Inc() }

// Correction records a correction attempt.
func (c *Collector) Correction() { c.corrections.Inc() }

// Throttled records a rate limiter rejection.
func (c *Collector) Throttled(role core.Role) { c.throttles.WithLabelValues(string(role)).Inc() }

// AuditFailure records a failed audit append.
func (c *Collector) AuditFailure(action core.AuditAction) {
	c.auditFailures.WithLabelValues(string(action)).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Push sends the current values to a Pushgateway. Short-lived processes such
// as the CLI use it instead of being scraped.
func (c *Collector) Push(ctx context.Context, url, job, instance string) error {
	pusher := push.New(url, job).Gatherer(c.registry)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
