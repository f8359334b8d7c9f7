package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn is one prior exchange of the context sequence (a chat turn or a
// retrieved document chunk).
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request is a GenerationRequest. It is a value type; the context sequence is
// copied on construction and on read so a Request cannot be mutated after it
// has been handed to the pipeline.
type Request struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Prompt    string    `json:"prompt"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	context []Turn
}

// RequestOptions configures NewRequest.
type RequestOptions struct {
	ID      string
	UserID  string
	Role    Role
	Context []Turn
	Now     func() time.Time
}

// NewRequest builds an immutable Request. Role defaults to student.
func NewRequest(kind Kind, prompt string, optFns ...func(o *RequestOptions)) Request {
	opts := RequestOptions{
		Role: RoleStudent,
		Now:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Request{
		ID:        id,
		Kind:      kind,
		Prompt:    prompt,
		UserID:    opts.UserID,
		Role:      opts.Role,
		CreatedAt: opts.Now().UTC(),
		context:   copyTurns(opts.Context),
	}
}

// Context returns a copy of the ordered context sequence.
func (r Request) Context() []Turn { return copyTurns(r.context) }

// WithContext returns a copy of r carrying the given context sequence. The
// pipeline uses it to attach retrieved document chunks before fingerprinting.
func (r Request) WithContext(turns []Turn) Request {
	r.context = copyTurns(turns)
	return r
}

// Fingerprint returns the cache key for the request.
func (r Request) Fingerprint() string {
	return Fingerprint(r.Kind, r.Prompt, r.context)
}

// Validate checks the request is well formed.
func (r Request) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	if !r.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, r.Role)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidRequest)
	}
	return nil
}

func copyTurns(in []Turn) []Turn {
	if len(in) == 0 {
		return nil
	}
	out := make([]Turn, len(in))
	copy(out, in)
	return out
}
