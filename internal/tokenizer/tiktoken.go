package tokenizer

import (
	"context"
	"fmt"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tiktoken counts with OpenAI BPE encodings. The encoding is loaded on
// first use; if it cannot be loaded (offline and uncached) counts fall back
// to a 4 chars/token heuristic.
type Tiktoken struct {
	model    string
	fallback Counter

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktoken creates a counter for an OpenAI model id.
func NewTiktoken(model string) *Tiktoken {
	return &Tiktoken{model: model, fallback: Heuristic{CharsPerToken: 4.0}}
}

func (t *Tiktoken) load() {
	t.enc, t.err = tiktoken.EncodingForModel(t.model)
	if t.err != nil {
		t.enc, t.err = tiktoken.GetEncoding("cl100k_base")
	}
	if t.err != nil {
		t.err = fmt.Errorf("tiktoken: load encoding for %s: %w", t.model, t.err)
	}
}

// CountTokens implements Counter.
func (t *Tiktoken) CountTokens(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.once.Do(t.load)
	if t.err != nil {
		return t.fallback.CountTokens(ctx, text)
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Err reports why the encoding could not be loaded, if it could not.
func (t *Tiktoken) Err() error {
	t.once.Do(t.load)
	return t.err
}
