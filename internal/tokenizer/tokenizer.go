// Package tokenizer provides per-model token counters and the registry that
// maps model ids to counters and context windows.
package tokenizer

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// Counter counts tokens for one model. Implementations must be
// deterministic for a given text and safe for concurrent use.
type Counter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context, text string) (int, error)

// CountTokens calls f.
func (f CounterFunc) CountTokens(ctx context.Context, text string) (int, error) {
	return f(ctx, text)
}

// Heuristic estimates tokens as characters divided by an average
// characters-per-token ratio, rounded down.
type Heuristic struct {
	CharsPerToken float64
}

// CountTokens implements Counter.
func (h Heuristic) CountTokens(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cpt := h.CharsPerToken
	if cpt <= 0 {
		cpt = 4.0
	}
	return int(math.Floor(float64(utf8.RuneCountInString(text)) / cpt)), nil
}

// Model describes a registered model.
type Model struct {
	ID      string
	Window  int
	Counter Counter
	Method  string // "heuristic", "tiktoken" or "remote"
}

// Registry maps model ids to counters. It is read-only after construction.
type Registry struct {
	models map[string]Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register adds or replaces a model.
func (r *Registry) Register(m Model) {
	r.models[strings.ToLower(m.ID)] = m
}

// Lookup returns the model registered under id (case-insensitive).
func (r *Registry) Lookup(id string) (Model, error) {
	m, ok := r.models[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Model{}, errors.NewUnknownModel(id)
	}
	return m, nil
}

// Models returns every registered model id in sorted order.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Options configures the default registry.
type Options struct {
	// Windows overrides context windows per model id.
	Windows map[string]int
	// GeminiAPIKey enables remote counting for gemini when Remote is set.
	GeminiAPIKey string
	Remote       bool
}

// DefaultRegistry registers the built-in models: claude, gpt-4, gpt-4o,
// gemini and llama. Models in opts.Windows that are not built in are
// registered with the generic 4 chars/token heuristic.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	window := func(id string, def int) int {
		if w, ok := opts.Windows[id]; ok && w > 0 {
			return w
		}
		return def
	}

	r.Register(Model{ID: "claude", Window: window("claude", 200000), Counter: Heuristic{CharsPerToken: 3.5}, Method: "heuristic"})
	r.Register(Model{ID: "gpt-4", Window: window("gpt-4", 128000), Counter: NewTiktoken("gpt-4"), Method: "tiktoken"})
	r.Register(Model{ID: "gpt-4o", Window: window("gpt-4o", 128000), Counter: NewTiktoken("gpt-4o"), Method: "tiktoken"})
	r.Register(Model{ID: "llama", Window: window("llama", 128000), Counter: Heuristic{CharsPerToken: 3.8}, Method: "heuristic"})

	gemini := Model{ID: "gemini", Window: window("gemini", 1000000), Counter: Heuristic{CharsPerToken: 4.0}, Method: "heuristic"}
	if opts.Remote && opts.GeminiAPIKey != "" {
		gemini.Counter = NewGemini(opts.GeminiAPIKey, "", gemini.Counter)
		gemini.Method = "remote"
	}
	r.Register(gemini)

	for id, w := range opts.Windows {
		if _, err := r.Lookup(id); err != nil && w > 0 {
			r.Register(Model{ID: id, Window: w, Counter: Heuristic{CharsPerToken: 4.0}, Method: "heuristic"})
		}
	}
	return r
}
