package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini is the hosted generation backend. Like Ollama it is single-turn:
// every Generate call builds a fresh content list from scratch.
type Gemini struct {
	client *genai.Client
	model  string
}

type GeminiOption func(*Gemini)

func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.model = model
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &Gemini{
		client: client,
		model:  "gemini-2.5-flash",
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}
