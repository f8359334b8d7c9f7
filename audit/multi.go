package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/medguard/core"
)

var _ core.AuditSink = (*MultiSink)(nil)

// MultiSink appends every entry to all of its sinks in order. It fails if any
// sink fails; sinks after a failing one are still attempted.
type MultiSink struct {
	sinks []core.AuditSink
}

// NewMultiSink combines sinks. Nil sinks are skipped.
func NewMultiSink(sinks ...core.AuditSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Append implements core.AuditSink.
func (m *MultiSink) Append(ctx context.Context, entry core.AuditEntry) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("audit sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
