// Package gemini provides a model.Provider backed by Google's Gemini API via
// the generative-ai-go SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const providerName = "gemini"

// Options configures the Gemini provider.
type Options struct {
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int32
}

// Provider wraps a genai.Client.
type Provider struct {
	client *genai.Client
	opts   Options
}

// New dials the Gemini API. Close releases the underlying connection.
func New(ctx context.Context, optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{
		Model:       "gemini-1.5-flash",
		Temperature: 0.3,
		MaxTokens:   2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}

	return &Provider{client: cl, opts: opts}, nil
}

// Close closes the client.
func (p *Provider) Close() error { return p.client.Close() }

// Generate implements model.Provider.
func (p *Provider) Generate(ctx context.Context, prompt model.Prompt) (string, error) {
	m := p.client.GenerativeModel(p.opts.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(p.opts.Temperature),
		MaxOutputTokens: genai.Ptr(p.opts.MaxTokens),
	}
	if prompt.Instructions != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.Instructions)}}
	}

	history, last := splitHistory(prompt)
	cs := m.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", classify(fmt.Errorf("gemini api error: %w", err))
	}

	text := strings.TrimSpace(firstText(resp))
	if text == "" {
		return "", model.Classify(providerName, model.ErrEmptyCompletion)
	}
	return text, nil
}

// splitHistory converts all but the final message into chat history.
func splitHistory(prompt model.Prompt) ([]*genai.Content, string) {
	msgs := prompt.Messages()
	history := make([]*genai.Content, 0, len(msgs)-1)
	for _, msg := range msgs[:len(msgs)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Text)}})
	}
	return history, msgs[len(msgs)-1].Text
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// classify inspects REST (googleapi) and gRPC status errors.
func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return model.ClassifyStatus(providerName, gErr.Code, err)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return core.NewTransportError(providerName, kindForCode(st.Code()), err)
	}
	return model.Classify(providerName, err)
}

func kindForCode(c codes.Code) core.TransportErrorKind {
	switch c {
	case codes.ResourceExhausted:
		return core.TransportRateLimit
	case codes.DeadlineExceeded:
		return core.TransportTimeout
	case codes.Unavailable, codes.Internal, codes.Aborted, codes.DataLoss:
		return core.TransportServer
	default:
		return core.TransportClient
	}
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: providerName}
}
