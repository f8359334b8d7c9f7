package core

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies what the caller asked the pipeline to produce. The set is
// closed; every switch over Kind in this module is exhaustive.
type Kind string

const (
	// KindChat is a conversational tutoring turn.
	KindChat Kind = "chat"
	// KindQuiz is a generated set of assessment questions.
	KindQuiz Kind = "quiz"
	// KindMindMap is a hierarchical outline rendered as a mind map downstream.
	KindMindMap Kind = "mindmap"
	// KindInfographic is structured copy for an infographic renderer.
	KindInfographic Kind = "infographic"
	// KindSlide is slide deck copy.
	KindSlide Kind = "slide"
	// KindDocQA answers a question grounded in retrieved document chunks.
	KindDocQA Kind = "doc-qa"
)

// Kinds lists every supported Kind in declaration order.
var Kinds = []Kind{KindChat, KindQuiz, KindMindMap, KindInfographic, KindSlide, KindDocQA}

// ParseKind converts a user supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, s)
	}
	return k, nil
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindQuiz, KindMindMap, KindInfographic, KindSlide, KindDocQA:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// ContentType is the label recorded in audit entries for content of this kind.
func (k Kind) ContentType() string {
	switch k {
	case KindChat:
		return "chat_response"
	case KindQuiz:
		return "quiz"
	case KindMindMap:
		return "mind_map"
	case KindInfographic:
		return "infographic"
	case KindSlide:
		return "slide_deck"
	case KindDocQA:
		return "document_answer"
	default:
		return "unknown"
	}
}

// CacheTTL scales the base cache TTL for the kind. Conversational answers go
// stale quickly; structured study material is reused for longer.
func (k Kind) CacheTTL(base time.Duration) time.Duration {
	switch k {
	case KindChat:
		return base
	case KindDocQA:
		return base / 2
	case KindQuiz, KindMindMap, KindInfographic, KindSlide:
		return base * 4
	default:
		return base
	}
}

// Role is the caller's role, used for quota and appropriateness decisions.
type Role string

const (
	// RoleStudent is a learner account.
	RoleStudent Role = "student"
	// RoleFaculty is a teaching staff account.
	RoleFaculty Role = "faculty"
)

// ParseRole converts a user supplied string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, s)
	}
	return r, nil
}

// Valid reports whether r is a supported role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleFaculty
}

// String implements fmt.Stringer.
func (r Role) String() string { return string(r) }

// CanReuse reports whether content validated for role `validatedFor` may be
// served to r without re-running the appropriateness screen. Student content
// passed the stricter screen and is safe for everyone.
func (r Role) CanReuse(validatedFor Role) bool {
	return validatedFor == r || validatedFor == RoleStudent
}
