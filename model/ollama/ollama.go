// Package ollama provides a model.Provider for a self-hosted Ollama server
// using its native chat API.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hupe1980/medguard/model"
	"github.com/ollama/ollama/api"
)

const providerName = "ollama"

// Options configures the Ollama provider.
type Options struct {
	Model       string
	BaseURL     string
	Temperature float64
	NumPredict  int
	HTTPClient  *http.Client
}

// Provider wraps an api.Client.
type Provider struct {
	client *api.Client
	opts   Options
}

// New creates a provider. The base URL may carry a trailing /v1 from an
// OpenAI-compatible configuration; it is stripped for the native API.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{
		Model:       "llama3.1",
		BaseURL:     "http://localhost:11434",
		Temperature: 0.3,
		NumPredict:  2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	base := strings.TrimSuffix(strings.TrimSuffix(opts.BaseURL, "/"), "/v1")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base url %q: %w", opts.BaseURL, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Provider{client: api.NewClient(u, httpClient), opts: opts}, nil
}

// Generate implements model.Provider.
func (p *Provider) Generate(ctx context.Context, prompt model.Prompt) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    p.opts.Model,
		Messages: buildMessages(prompt),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": p.opts.Temperature,
			"num_predict": p.opts.NumPredict,
		},
	}

	var resp api.ChatResponse
	err := p.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		return "", classify(fmt.Errorf("ollama api error: %w", err))
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", model.Classify(providerName, model.ErrEmptyCompletion)
	}
	return text, nil
}

func buildMessages(prompt model.Prompt) []api.Message {
	msgs := prompt.Messages()
	out := make([]api.Message, 0, len(msgs)+1)
	if prompt.Instructions != "" {
		out = append(out, api.Message{Role: "system", Content: prompt.Instructions})
	}
	for _, m := range msgs {
		out = append(out, api.Message{Role: m.Role, Content: m.Text})
	}
	return out
}

func classify(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		return model.ClassifyStatus(providerName, se.StatusCode, err)
	}
	return model.Classify(providerName, err)
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: providerName}
}
