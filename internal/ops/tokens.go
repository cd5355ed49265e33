package ops

import (
	"context"
	"sort"

	"github.com/hpungsan/ctxpack/internal/ledger"
	"github.com/hpungsan/ctxpack/internal/session"
)

// TokensInput contains parameters for the Tokens operation.
type TokensInput struct {
	Model     string // default: the session model
	AllModels bool   // report every registered model
	PerFile   bool   // include per-file counts
}

// TokenReport is one model's total, optionally broken down per file.
type TokenReport struct {
	session.TokenReport
	Files []ledger.Count `json:"files,omitempty"`
}

// TokensOutput contains the result of the Tokens operation.
type TokensOutput struct {
	Files   int           `json:"files"`
	Reports []TokenReport `json:"reports"`
}

// Tokens totals the selection for one model or all of them.
func Tokens(ctx context.Context, s *session.Session, input TokensInput) (*TokensOutput, error) {
	models := []string{input.Model}
	if input.AllModels {
		models = s.Models.Models()
	}

	out := &TokensOutput{
		Files:   len(s.Tree.Included()),
		Reports: make([]TokenReport, 0, len(models)),
	}
	for _, m := range models {
		r, err := s.Tokens(ctx, m)
		if err != nil {
			return nil, err
		}
		report := TokenReport{TokenReport: r}
		if input.PerFile {
			report.Files = append([]ledger.Count(nil), r.Total.Counts...)
			sort.SliceStable(report.Files, func(i, j int) bool {
				return report.Files[i].Tokens > report.Files[j].Tokens
			})
		}
		out.Reports = append(out.Reports, report)
	}
	return out, nil
}
