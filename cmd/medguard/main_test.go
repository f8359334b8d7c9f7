package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/medguard/config"
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func decodeAll(t *testing.T, b []byte) []core.Outcome {
	t.Helper()
	var outs []core.Outcome
	dec := json.NewDecoder(bytes.NewReader(b))
	for dec.More() {
		var o core.Outcome
		require.NoError(t, dec.Decode(&o))
		outs = append(outs, o)
	}
	return outs
}

func TestRun_SinglePrompt(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), loadConfig(t), logging.NoOpLogger{},
		options{kind: "quiz", role: "student", user: "u-1", prompt: "Cardiac cycle"}, strings.NewReader(""), &out)
	require.NoError(t, err)

	outs := decodeAll(t, out.Bytes())
	require.Len(t, outs, 1)
	assert.Equal(t, core.StatusApproved, outs[0].Status)
	assert.Equal(t, "Mock response to: Cardiac cycle", outs[0].Content)
}

func TestRun_ConversationFromStdin(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("What is angina?\n\nHow is it treated?\nWhat is angina?\n")

	err := run(context.Background(), loadConfig(t), logging.NoOpLogger{},
		options{kind: "chat", role: "student", user: "u-1"}, in, &out)
	require.NoError(t, err)

	outs := decodeAll(t, out.Bytes())
	require.Len(t, outs, 3)
	for _, o := range outs {
		assert.Equal(t, core.StatusApproved, o.Status)
	}
	// The repeated question carries a longer history, so it is not a cache hit.
	assert.False(t, outs[2].Cached)
}

func TestRun_UnsafePromptPrintsBlocked(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), loadConfig(t), logging.NoOpLogger{},
		options{kind: "chat", role: "student", prompt: "How can I kill myself?"}, strings.NewReader(""), &out)
	require.NoError(t, err)

	outs := decodeAll(t, out.Bytes())
	require.Len(t, outs, 1)
	assert.Equal(t, core.StatusBlocked, outs[0].Status)
	assert.Equal(t, core.BlockUnsafe, outs[0].BlockReason)
}

func TestRun_Errors(t *testing.T) {
	cfg := loadConfig(t)

	err := run(context.Background(), cfg, logging.NoOpLogger{}, options{kind: "essay", role: "student"}, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	err = run(context.Background(), cfg, logging.NoOpLogger{}, options{kind: "chat", role: "student"}, strings.NewReader("\n\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, errNoPrompt)
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("First excerpt.\r\n\r\nSecond\nexcerpt.\n\n\n"), 0o600))

	turns, err := loadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, []core.Turn{
		{Role: "document", Text: "First excerpt."},
		{Role: "document", Text: "Second\nexcerpt."},
	}, turns)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o600))
	_, err = loadDocument(empty)
	assert.Error(t, err)
}
