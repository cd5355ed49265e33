package session

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/ledger"
	"github.com/hpungsan/ctxpack/internal/render"
	"github.com/hpungsan/ctxpack/internal/suggest"
)

// TokenReport is the token total of the current selection for one model.
type TokenReport struct {
	Model  string       `json:"model"`
	Method string       `json:"method"`
	Total  ledger.Total `json:"total"`
	Usage  ledger.Usage `json:"usage"`
	Stats  ledger.Stats `json:"stats"`
}

// Tokens totals the included files under model (the default model when
// empty). Counting is warmed in parallel first; a file that times out there
// is reported unknown rather than counted again.
func (s *Session) Tokens(ctx context.Context, model string) (TokenReport, error) {
	if model == "" {
		model = s.model
	}
	m, err := s.Models.Lookup(model)
	if err != nil {
		return TokenReport{}, err
	}

	total, err := s.Ledger.WarmTotal(ctx, s.Tree, m.ID, 0)
	if err != nil {
		return TokenReport{}, err
	}
	if len(total.Unknown) > 0 {
		s.logger.Warn("Some token counts are unknown", zap.String("model", m.ID), zap.Strings("paths", total.Unknown))
	}

	return TokenReport{
		Model:  m.ID,
		Method: m.Method,
		Total:  total,
		Usage:  ledger.Classify(total.Tokens, m.Window),
		Stats:  s.Ledger.Stats(),
	}, nil
}

// Suggest proposes files related to the selection. limit <= 0 uses the
// configured suggest_limit.
func (s *Session) Suggest(limit int) []suggest.Suggestion {
	if limit <= 0 {
		limit = s.Config.SuggestLimit
	}
	return suggest.Suggest(s.Tree, s.Catalog, s.Catalog.Read, suggest.Options{Limit: limit})
}

// BundleOptions configures Bundle.
type BundleOptions struct {
	// Model selects the tokenizer for per-file counts; empty uses the default.
	Model string
	// SkipTokens leaves token fields zero.
	SkipTokens bool
	// Workers bounds concurrent file reads; 0 means NumCPU.
	Workers int
}

// Bundle reads every included file, in path order, into a render.Bundle.
// Unreadable files are left out and returned as IO_ERROR warnings.
func (s *Session) Bundle(ctx context.Context, opts BundleOptions) (render.Bundle, []*errors.PackError, error) {
	paths := s.Tree.Included()
	files := make([]render.File, len(paths))
	readErrs := make([]error, len(paths))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.Catalog.Read(p)
			if err != nil {
				readErrs[i] = err
				return nil
			}
			e, _ := s.Catalog.Lookup(p)
			content := string(data)
			files[i] = render.File{
				Path:     p,
				Language: e.Language,
				Size:     e.Size,
				Hash:     render.Hash(content),
				Content:  content,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return render.Bundle{}, nil, err
	}

	b := render.Bundle{
		ProjectPath: s.Root,
		ProjectType: s.ProjectType,
		GeneratedAt: time.Now().UTC(),
	}
	var warnings []*errors.PackError
	for i, f := range files {
		if readErrs[i] != nil {
			pErr, ok := errors.As(readErrs[i])
			if !ok {
				pErr = errors.NewIO(paths[i], readErrs[i])
			}
			warnings = append(warnings, pErr)
			continue
		}
		b.Files = append(b.Files, f)
	}

	if opts.SkipTokens {
		return b, warnings, nil
	}
	report, err := s.Tokens(ctx, opts.Model)
	if err != nil {
		return render.Bundle{}, warnings, err
	}
	b.Model = report.Model
	b.Tokens = report.Total.Tokens
	byPath := make(map[string]int, len(report.Total.Counts))
	for _, c := range report.Total.Counts {
		byPath[c.Path] = c.Tokens
	}
	for i := range b.Files {
		b.Files[i].Tokens = byPath[b.Files[i].Path]
	}
	return b, warnings, nil
}
