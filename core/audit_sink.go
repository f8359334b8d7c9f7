package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the decision recorded by an AuditEntry.
type AuditAction string

const (
	// ActionApproved records content approved on the first validation pass.
	ActionApproved AuditAction = "approved"
	// ActionCorrected records content approved after the correction loop.
	ActionCorrected AuditAction = "corrected"
	// ActionBlocked records a refusal.
	ActionBlocked AuditAction = "blocked"
)

// AuditEntry is an append-only record of a Guard Agent decision.
type AuditEntry struct {
	ID              string           `json:"id"`
	RequestID       string           `json:"request_id"`
	UserID          string           `json:"user_id"`
	ContentType     string           `json:"content_type"`
	Role            Role             `json:"role"`
	OriginalContent string           `json:"original_content"`
	FinalContent    string           `json:"final_content,omitempty"`
	Validation      ValidationResult `json:"validation_result"`
	Action          AuditAction      `json:"action"`
	Reasons         []string         `json:"reasons,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// NewAuditEntry builds an entry for req with a fresh id.
func NewAuditEntry(req Request, action AuditAction, original string, v ValidationResult, now time.Time) AuditEntry {
	return AuditEntry{
		ID:              uuid.NewString(),
		RequestID:       req.ID,
		UserID:          req.UserID,
		ContentType:     req.Kind.ContentType(),
		Role:            req.Role,
		OriginalContent: original,
		Validation:      v.Clone(),
		Action:          action,
		Timestamp:       now.UTC(),
	}
}

// AuditSink appends audit entries. Append must not return before the entry is
// durable (written or durably queued).
type AuditSink interface {
	Append(ctx context.Context, entry AuditEntry) error
}
