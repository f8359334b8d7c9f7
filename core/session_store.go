package core

import "context"

// SessionStore keeps the approved exchanges of chat sessions so follow-up
// turns can be sent with their conversation context. Only content that was
// returned to the caller as Approved is ever appended.
type SessionStore interface {
	// History returns the ordered turns of a session; unknown sessions are empty.
	History(ctx context.Context, sessionID string) ([]Turn, error)
	// Append adds turns to the end of a session.
	Append(ctx context.Context, sessionID string, turns ...Turn) error
}
