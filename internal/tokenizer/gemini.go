package tokenizer

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the model used for remote counting.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini counts tokens through the Gemini API. Client creation is lazy; if
// the client cannot be created the fallback counter is used instead.
type Gemini struct {
	apiKey   string
	model    string
	fallback Counter

	once sync.Once
	cli  *genai.Client
	err  error
}

// NewGemini creates a remote counter. An empty model uses DefaultGeminiModel.
func NewGemini(apiKey, model string, fallback Counter) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{apiKey: apiKey, model: model, fallback: fallback}
}

func (g *Gemini) connect(ctx context.Context) {
	g.cli, g.err = genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// CountTokens implements Counter. API errors are returned to the caller;
// cancellation and deadline errors pass through unchanged.
func (g *Gemini) CountTokens(ctx context.Context, text string) (int, error) {
	g.once.Do(func() { g.connect(context.Background()) })
	if g.err != nil {
		if g.fallback != nil {
			return g.fallback.CountTokens(ctx, text)
		}
		return 0, fmt.Errorf("gemini: create client: %w", g.err)
	}

	resp, err := g.cli.Models.CountTokens(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("gemini: count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}
