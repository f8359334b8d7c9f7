package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizePrompt trims, lower-cases and collapses internal whitespace so
// trivially different spellings of the same prompt share a cache key.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// ContextHash is a stable hash over the ordered context sequence.
func ContextHash(turns []Turn) string {
	h := sha256.New()
	for _, t := range turns {
		h.Write([]byte(t.Role))
		h.Write([]byte{0})
		h.Write([]byte(t.Text))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes (kind, normalized prompt, context hash).
func Fingerprint(kind Kind, prompt string, turns []Turn) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0x1f})
	h.Write([]byte(NormalizePrompt(prompt)))
	h.Write([]byte{0x1f})
	h.Write([]byte(ContextHash(turns)))
	return hex.EncodeToString(h.Sum(nil))
}
