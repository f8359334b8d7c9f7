package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/medguard/core"
)

// ErrEmptyCompletion is returned when a provider answered without any text.
// Providers wrap it as a retryable server error.
var ErrEmptyCompletion = errors.New("empty completion")

// Prompt is the normalized model input.
type Prompt struct {
	Instructions string      `json:"instructions"`
	Context      []core.Turn `json:"context,omitempty"`
	Text         string      `json:"text"`
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "gemini", "ollama", "mock"
}

// Provider is one call to an external generative model. Implementations
// return *core.TransportError for every failure they can classify and must
// abort promptly when ctx is done.
type Provider interface {
	Generate(ctx context.Context, p Prompt) (string, error)

	// Info returns information about the provider implementation.
	Info() Info
}

// Step is one scripted MockProvider response.
type Step struct {
	Text  string
	Err   error
	Delay time.Duration
}

// MockProvider is an in-memory Provider that replays scripted steps. Once the
// script is exhausted it echoes the prompt. Safe for concurrent use.
type MockProvider struct {
	info Info

	mu      sync.Mutex
	steps   []Step
	prompts []Prompt
}

// NewMockProvider constructs a MockProvider with the given script.
func NewMockProvider(name string, steps ...Step) *MockProvider {
	return &MockProvider{
		info:  Info{Name: name, Provider: "mock"},
		steps: steps,
	}
}

// Then appends a successful completion to the script.
func (m *MockProvider) Then(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Text: text})
	return m
}

// ThenError appends a failure to the script.
func (m *MockProvider) ThenError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Err: err})
	return m
}

// ThenStep appends an arbitrary step, e.g. a delayed completion.
func (m *MockProvider) ThenStep(step Step) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
	return m
}

// Generate implements Provider.
func (m *MockProvider) Generate(ctx context.Context, p Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	var step Step
	scripted := len(m.steps) > 0
	if scripted {
		step = m.steps[0]
		m.steps = m.steps[1:]
	}
	m.mu.Unlock()

	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", Classify(m.info.Provider, ctx.Err())
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", Classify(m.info.Provider, err)
	}
	if !scripted {
		return fmt.Sprintf("Mock response to: %s", p.Text), nil
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Text, nil
}

// Calls returns how many times Generate was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (m *MockProvider) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }

// Turn roles understood by the adapters. Anything else is sent as user input.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleDocument  = "document"
)

// Message is a flattened chat message.
type Message struct {
	Role string
	Text string
}

// Messages flattens the context and the prompt text into an ordered list of
// user/assistant messages. Document chunks become labelled user messages.
func (p Prompt) Messages() []Message {
	out := make([]Message, 0, len(p.Context)+1)
	for _, t := range p.Context {
		switch t.Role {
		case RoleAssistant:
			out = append(out, Message{Role: RoleAssistant, Text: t.Text})
		case RoleDocument:
			out = append(out, Message{Role: RoleUser, Text: "Document excerpt:\n" + t.Text})
		default:
			out = append(out, Message{Role: RoleUser, Text: t.Text})
		}
	}
	return append(out, Message{Role: RoleUser, Text: p.Text})
}
