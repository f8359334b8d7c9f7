package core

import "time"

// AttemptOutcome classifies a single provider call.
type AttemptOutcome string

const (
	// AttemptSuccess returned text.
	AttemptSuccess AttemptOutcome = "success"
	// AttemptTimeout hit the per-attempt or provider deadline.
	AttemptTimeout AttemptOutcome = "timeout"
	// AttemptProviderError is any other provider or network failure.
	AttemptProviderError AttemptOutcome = "provider_error"
	// AttemptRateLimited was rejected by the provider's own quota.
	AttemptRateLimited AttemptOutcome = "rate_limited"
	// AttemptCanceled was aborted by the request context.
	AttemptCanceled AttemptOutcome = "canceled"
)

// Attempt is a ModelCallAttempt record. Attempts are append-only.
type Attempt struct {
	Number    int            `json:"number"`
	StartedAt time.Time      `json:"started_at"`
	Outcome   AttemptOutcome `json:"outcome"`
	Latency   time.Duration  `json:"latency"`
	Wait      time.Duration  `json:"wait,omitempty"`
	Error     string         `json:"error,omitempty"`
}
