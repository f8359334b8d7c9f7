package core

import "time"

// Status tags the variant held by an Outcome.
type Status string

const (
	// StatusApproved carries validated content.
	StatusApproved Status = "approved"
	// StatusBlocked carries a refusal that has been audited.
	StatusBlocked Status = "blocked"
	// StatusFailed carries a transport, storage or deadline failure.
	StatusFailed Status = "failed"
	// StatusThrottled carries a rate limiter rejection.
	StatusThrottled Status = "throttled"
)

// BlockReason explains a Blocked outcome.
type BlockReason string

const (
	// BlockUnsafe is a safety screen failure.
	BlockUnsafe BlockReason = "unsafe"
	// BlockNotPermitted is an appropriateness (authorization-style) rejection.
	BlockNotPermitted BlockReason = "not_permitted"
	// BlockUncorrectable means the single correction attempt did not fix accuracy issues.
	BlockUncorrectable BlockReason = "uncorrectable"
)

// Outcome is the terminal result of one pipeline run. Exactly one is produced
// per request. Only the fields belonging to Status are populated.
type Outcome struct {
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
	Attempts  []Attempt `json:"attempts,omitempty"`

	// Approved
	Content    string            `json:"content,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Corrected  bool              `json:"corrected,omitempty"`
	Cached     bool              `json:"cached,omitempty"`
	Uncertain  bool              `json:"uncertain,omitempty"`

	// Blocked
	BlockReason BlockReason `json:"block_reason,omitempty"`
	Reasons     []string    `json:"reasons,omitempty"`
	AuditRef    string      `json:"audit_ref,omitempty"`

	// Failed
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Err       error     `json:"-"`

	// Throttled
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Approved builds an approved outcome. The uncertainty indicator mirrors the
// validation result.
func Approved(requestID, content string, v ValidationResult, corrected, cached bool) Outcome {
	vc := v.Clone()
	return Outcome{
		RequestID:  requestID,
		Status:     StatusApproved,
		Content:    content,
		Validation: &vc,
		Corrected:  corrected,
		Cached:     cached,
		Uncertain:  v.Uncertain,
	}
}

// Blocked builds a blocked outcome referencing the audit entry that recorded it.
func Blocked(requestID string, reason BlockReason, reasons []string, auditRef string) Outcome {
	return Outcome{
		RequestID:   requestID,
		Status:      StatusBlocked,
		BlockReason: reason,
		Reasons:     append([]string(nil), reasons...),
		AuditRef:    auditRef,
	}
}

// Failed builds a failed outcome.
func Failed(requestID string, kind ErrorKind, err error) Outcome {
	return Outcome{
		RequestID: requestID,
		Status:    StatusFailed,
		ErrorKind: kind,
		Err:       err,
	}
}

// Throttled builds a throttled outcome.
func Throttled(requestID string, retryAfter time.Duration) Outcome {
	return Outcome{
		RequestID:  requestID,
		Status:     StatusThrottled,
		RetryAfter: retryAfter,
	}
}

// IsApproved reports whether the outcome carries content.
func (o Outcome) IsApproved() bool { return o.Status == StatusApproved }

// HasReason reports whether reason is among the block reasons.
func (o Outcome) HasReason(reason string) bool {
	for _, r := range o.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}
