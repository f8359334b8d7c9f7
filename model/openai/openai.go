// Package openai provides an implementation of model.Provider using the OpenAI
// Chat Completions API. It adapts medguard's normalized Prompt into the SDK's
// message format and classifies API failures into core.TransportError.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/medguard/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerName = "openai"

// Options configure the OpenAI provider adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.3,
		MaxCompletionTokens: 2048,
	}
}

// New creates a provider with its own client. SDK level retries are disabled
// because the retry controller owns the retry policy.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Generate implements model.Provider.
func (p *Provider) Generate(ctx context.Context, prompt model.Prompt) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(prompt))
	if err != nil {
		return "", classify(fmt.Errorf("openai api error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", model.Classify(providerName, fmt.Errorf("no choices returned: %w", model.ErrEmptyCompletion))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", model.Classify(providerName, model.ErrEmptyCompletion)
	}
	return text, nil
}

func (p *Provider) buildParams(prompt model.Prompt) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages:            buildMessages(prompt),
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
}

// buildMessages converts the prompt into OpenAI chat messages with the
// instructions as the leading system message.
func buildMessages(prompt model.Prompt) []openai.ChatCompletionMessageParamUnion {
	msgs := prompt.Messages()
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if prompt.Instructions != "" {
		out = append(out, openai.SystemMessage(prompt.Instructions))
	}
	for _, m := range msgs {
		if m.Role == model.RoleAssistant {
			out = append(out, openai.AssistantMessage(m.Text))
			continue
		}
		out = append(out, openai.UserMessage(m.Text))
	}
	return out
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return model.ClassifyStatus(providerName, apiErr.StatusCode, err)
	}
	return model.Classify(providerName, err)
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: providerName}
}
