package testutil

import (
	"time"

	"github.com/hupe1980/medguard/core"
)

// RequestBuilder constructs core.Request values with fluent chaining.
// Example:
//
//	req := NewRequestBuilder(core.KindChat, "What is sepsis?").Faculty().Build()
type RequestBuilder struct {
	kind   core.Kind
	prompt string
	opts   core.RequestOptions
}

// NewRequestBuilder starts a student request with a fixed id and user so
// assertions stay deterministic.
func NewRequestBuilder(kind core.Kind, prompt string) *RequestBuilder {
	return &RequestBuilder{
		kind:   kind,
		prompt: prompt,
		opts: core.RequestOptions{
			ID:     "req-1",
			UserID: "user-1",
			Role:   core.RoleStudent,
		},
	}
}

// ID sets the request id (chainable).
func (b *RequestBuilder) ID(id string) *RequestBuilder {
	b.opts.ID = id
	return b
}

// User sets the user id (chainable).
func (b *RequestBuilder) User(id string) *RequestBuilder {
	b.opts.UserID = id
	return b
}

// Role sets the caller role (chainable).
func (b *RequestBuilder) Role(r core.Role) *RequestBuilder {
	b.opts.Role = r
	return b
}

// Faculty is shorthand for Role(core.RoleFaculty).
func (b *RequestBuilder) Faculty() *RequestBuilder { return b.Role(core.RoleFaculty) }

// Turn appends one context turn (chainable).
func (b *RequestBuilder) Turn(role, text string) *RequestBuilder {
	b.opts.Context = append(b.opts.Context, core.Turn{Role: role, Text: text})
	return b
}

// At fixes the creation time (chainable).
func (b *RequestBuilder) At(t time.Time) *RequestBuilder {
	b.opts.Now = func() time.Time { return t }
	return b
}

// Build returns the immutable request.
func (b *RequestBuilder) Build() core.Request {
	opts := b.opts
	return core.NewRequest(b.kind, b.prompt, func(o *core.RequestOptions) {
		o.ID = opts.ID
		o.UserID = opts.UserID
		o.Role = opts.Role
		o.Context = opts.Context
		if opts.Now != nil {
			o.Now = opts.Now
		}
	})
}
