package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(" " + string(k) + " ")
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("podcast")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestKind_ContentTypeAndTTL(t *testing.T) {
	base := time.Hour
	for _, k := range Kinds {
		assert.NotEqual(t, "unknown", k.ContentType(), k)
		assert.Positive(t, k.CacheTTL(base), k)
	}
	assert.Equal(t, base, KindChat.CacheTTL(base))
	assert.Equal(t, 30*time.Minute, KindDocQA.CacheTTL(base))
	assert.Equal(t, 4*time.Hour, KindQuiz.CacheTTL(base))
}

func TestRole_CanReuse(t *testing.T) {
	assert.True(t, RoleStudent.CanReuse(RoleStudent))
	assert.True(t, RoleFaculty.CanReuse(RoleStudent))
	assert.True(t, RoleFaculty.CanReuse(RoleFaculty))
	assert.False(t, RoleStudent.CanReuse(RoleFaculty))

	_, err := ParseRole("admin")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewRequest_Defaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	req := NewRequest(KindChat, "What is a beta blocker?", func(o *RequestOptions) {
		o.Now = func() time.Time { return now }
	})

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, RoleStudent, req.Role)
	assert.Equal(t, time.UTC, req.CreatedAt.Location())
	assert.True(t, req.CreatedAt.Equal(now))
	assert.NoError(t, req.Validate())
}

func TestRequest_ContextIsCopied(t *testing.T) {
	turns := []Turn{{Role: "user", Text: "hello"}}
	req := NewRequest(KindChat, "hi", func(o *RequestOptions) { o.Context = turns })

	turns[0].Text = "mutated"
	assert.Equal(t, "hello", req.Context()[0].Text)

	got := req.Context()
	got[0].Text = "mutated again"
	assert.Equal(t, "hello", req.Context()[0].Text)
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown kind", NewRequest(Kind("essay"), "x")},
		{"unknown role", NewRequest(KindQuiz, "x", func(o *RequestOptions) { o.Role = "guest" })},
		{"blank prompt", NewRequest(KindQuiz, "   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.req.Validate(), ErrInvalidRequest)
		})
	}
}

func TestFingerprint(t *testing.T) {
	ctx := []Turn{{Role: "user", Text: "previous"}}

	a := Fingerprint(KindChat, "  What IS   insulin? ", ctx)
	b := Fingerprint(KindChat, "what is insulin?", ctx)
	assert.Equal(t, a, b, "normalization should ignore case and whitespace")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint(KindQuiz, "what is insulin?", ctx))
	assert.NotEqual(t, a, Fingerprint(KindChat, "what is insulin?", nil))
	assert.NotEqual(t, a, Fingerprint(KindChat, "what is insulin?", []Turn{{Role: "user", Text: "other"}}))

	// Turn boundaries are part of the hash.
	assert.NotEqual(t,
		ContextHash([]Turn{{Role: "a", Text: "bc"}}),
		ContextHash([]Turn{{Role: "ab", Text: "c"}}),
	)
}

func TestCallBudget(t *testing.T) {
	b := NewCallBudget(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Spend())
	}
	err := b.Spend()
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 3, b.Spent())
	assert.Equal(t, 0, b.Remaining())

	unlimited := NewCallBudget(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, unlimited.Spend())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}

func TestCallBudget_ConcurrentSpendNeverOverdraws(t *testing.T) {
	b := NewCallBudget(5)

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Spend() == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, 5, b.Spent())
}

func TestIssueSet(t *testing.T) {
	assert.Nil(t, IssueSet())
	assert.Equal(t, []string{"a", "b"}, IssueSet("b", "a", "", "b"))
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection reset")
	te := NewTransportError("openai", TransportNetwork, cause)
	wrapped := fmt.Errorf("generate: %w", te)

	assert.True(t, IsRetryable(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, te.Error(), "openai")

	assert.False(t, IsRetryable(NewTransportError("openai", TransportClient, cause)))
	assert.False(t, IsRetryable(cause))
}

func TestOutcomeConstructors(t *testing.T) {
	v := ValidationResult{IsValid: true, Confidence: 0.8, Verdict: VerdictPass, Uncertain: true}
	o := Approved("r1", "text", v, false, true)
	assert.True(t, o.IsApproved())
	assert.True(t, o.Uncertain)
	assert.True(t, o.Cached)
	require.NotNil(t, o.Validation)

	reasons := []string{"self-harm"}
	b := Blocked("r2", BlockUnsafe, reasons, "audit-1")
	reasons[0] = "changed"
	assert.True(t, b.HasReason("self-harm"))
	assert.Equal(t, StatusBlocked, b.Status)

	f := Failed("r3", ErrorTimeout, errors.New("deadline"))
	assert.Equal(t, StatusFailed, f.Status)
	assert.False(t, f.IsApproved())
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Now()
	e := CacheEntry{ExpiresAt: now}
	assert.True(t, e.Expired(now))
	assert.False(t, e.Expired(now.Add(-time.Second)))
}

func TestNewAuditEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	req := NewRequest(KindSlide, "Heart failure deck", func(o *RequestOptions) {
		o.ID = "req-9"
		o.UserID = "user-9"
		o.Role = RoleFaculty
	})

	e := NewAuditEntry(req, ActionApproved, "draft", ValidationResult{IsValid: true, Verdict: VerdictPass}, now)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "req-9", e.RequestID)
	assert.Equal(t, "slide_deck", e.ContentType)
	assert.Equal(t, RoleFaculty, e.Role)
	assert.Equal(t, "draft", e.OriginalContent)
	assert.Equal(t, now.UTC(), e.Timestamp)
}
