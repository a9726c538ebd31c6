package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const systemPrompt = `You are the shopping assistant of an online marketplace.
Help buyers find products and understand the ordering process, and help sellers
understand the product review stages: digital review, sample shipping, physical
review, verification, revision and rejection. Keep answers short and factual.`

// Model produces the next assistant reply from the prior turns and a prompt.
type Model interface {
	Generate(ctx context.Context, history []Turn, prompt string) (string, error)
}

// GeminiModel calls the Gemini API. Each call builds a fresh chat from the
// supplied history, so the client keeps no conversation state between calls.
type GeminiModel struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiModel(ctx context.Context, apiKey, modelName string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("assistant: gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return &GeminiModel{client: client, model: model}, nil
}

func (g *GeminiModel) Generate(ctx context.Context, history []Turn, prompt string) (string, error) {
	cs := g.model.StartChat()
	cs.History = make([]*genai.Content, 0, len(history))
	for _, t := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("assistant: gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("assistant: empty response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("assistant: gemini returned no text")
	}
	return b.String(), nil
}

func (g *GeminiModel) Close() error {
	return g.client.Close()
}

// CannedModel answers without a network call. Used in mock mode and when no
// API key is configured.
type CannedModel struct{}

func (CannedModel) Generate(_ context.Context, history []Turn, prompt string) (string, error) {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "sample"):
		return "After digital review passes, ship a physical sample. Reviewers inspect it before verifying the product.", nil
	case strings.Contains(lower, "reject") || strings.Contains(lower, "revision"):
		return "Check your notifications for the reviewer's reason, update the listing and resubmit it for review.", nil
	case len(history) == 0:
		return "Hi! I can help with orders, listings and product reviews. What do you need?", nil
	default:
		return "Thanks, noted. Could you tell me a bit more about what you are looking for?", nil
	}
}
