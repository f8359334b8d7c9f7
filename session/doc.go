// Package session houses implementations of core.SessionStore, the chat
// history used as context for follow-up turns.
//
// Both stores keep a bounded window of the most recent turns so a long
// conversation never grows the prompt without limit.
package session
