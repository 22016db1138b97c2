// Package summary produces the narrative audit summary of a project through
// a hosted text-generation model.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"
)

// DefaultModel is the model asked for audit summaries.
const DefaultModel = "gemini-3-flash-preview"

// TextGenerator turns a prompt into text.
type TextGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GeminiGenerator calls the Generative Language API.
type GeminiGenerator struct {
	svc *generativelanguage.Service
}

// NewGeminiGenerator authenticates with an API key. Extra options are
// passed to the client, for example a custom endpoint.
func NewGeminiGenerator(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create generative language service: %w", err)
	}
	return &GeminiGenerator{svc: svc}, nil
}

// Generate sends prompt as a single user turn and joins the text parts of
// the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		}},
	}
	resp, err := g.svc.Models.GenerateContent(model, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
