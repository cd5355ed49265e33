package tokenizer

import (
	"context"
	"strings"
	"testing"

	"github.com/hpungsan/ctxpack/internal/errors"
)

func TestHeuristic_CountTokens(t *testing.T) {
	tests := []struct {
		name string
		cpt  float64
		text string
		want int
	}{
		{"claude ratio", 3.5, strings.Repeat("a", 350), 100},
		{"rounds down", 3.5, strings.Repeat("a", 10), 2},
		{"empty", 3.5, "", 0},
		{"runes not bytes", 4.0, "日本語のテキスト", 2},
		{"zero ratio uses default", 0, strings.Repeat("a", 40), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Heuristic{CharsPerToken: tt.cpt}.CountTokens(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("CountTokens() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CountTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHeuristic_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (Heuristic{CharsPerToken: 4}).CountTokens(ctx, "text"); err == nil {
		t.Error("CountTokens() should fail on a cancelled context")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(Options{Windows: map[string]int{"claude": 100000, "mistral": 32000}})

	claude, err := r.Lookup("Claude")
	if err != nil {
		t.Fatalf("Lookup(Claude) error = %v", err)
	}
	if claude.Window != 100000 {
		t.Errorf("claude window = %d, want 100000 (override)", claude.Window)
	}

	gemini, err := r.Lookup("gemini")
	if err != nil {
		t.Fatalf("Lookup(gemini) error = %v", err)
	}
	if gemini.Window != 1000000 || gemini.Method != "heuristic" {
		t.Errorf("gemini = %+v, want heuristic with 1M window", gemini)
	}

	mistral, err := r.Lookup("mistral")
	if err != nil {
		t.Fatalf("Lookup(mistral) error = %v", err)
	}
	if mistral.Window != 32000 {
		t.Errorf("mistral window = %d, want 32000", mistral.Window)
	}

	if _, err := r.Lookup("unknown-model"); !errors.Is(err, errors.ErrUnknownModel) {
		t.Errorf("Lookup(unknown) err = %v, want UNKNOWN_MODEL", err)
	}

	want := []string{"claude", "gemini", "gpt-4", "gpt-4o", "llama", "mistral"}
	if got := r.Models(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Models() = %v, want %v", got, want)
	}
}

func TestDefaultRegistry_RemoteGemini(t *testing.T) {
	r := DefaultRegistry(Options{Remote: true, GeminiAPIKey: "test-key"})
	m, err := r.Lookup("gemini")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if m.Method != "remote" {
		t.Errorf("Method = %q, want remote", m.Method)
	}
	if _, ok := m.Counter.(*Gemini); !ok {
		t.Errorf("Counter = %T, want *Gemini", m.Counter)
	}

	// Remote without a key stays local.
	r = DefaultRegistry(Options{Remote: true})
	m, _ = r.Lookup("gemini")
	if m.Method != "heuristic" {
		t.Errorf("Method = %q without key, want heuristic", m.Method)
	}
}

func TestCounterFunc(t *testing.T) {
	c := CounterFunc(func(ctx context.Context, text string) (int, error) {
		return len(strings.Fields(text)), nil
	})
	n, err := c.CountTokens(context.Background(), "three word text")
	if err != nil || n != 3 {
		t.Errorf("CountTokens() = %d, %v", n, err)
	}
}
