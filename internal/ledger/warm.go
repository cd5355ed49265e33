package ledger

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/ctxpack/internal/catalog"
)

type warmResult struct {
	path       string
	sig        catalog.Signature
	n          int
	err        error
	readFailed bool
}

// Warm counts paths concurrently with at most workers goroutines. Workers
// only read and count; every cache update happens on the calling goroutine
// after the group finishes. Returns the number of paths counted.
func (l *Ledger) Warm(ctx context.Context, paths []string, model string, workers int) (int, error) {
	counted, _, err := l.warm(ctx, paths, model, workers)
	return counted, err
}

// warm also returns the paths whose read or count failed.
func (l *Ledger) warm(ctx context.Context, paths []string, model string, workers int) (int, map[string]bool, error) {
	m, err := l.models.Lookup(model)
	if err != nil {
		return 0, nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type job struct {
		path string
		sig  catalog.Signature
	}
	var jobs []job
	for _, p := range paths {
		sig, ok := l.src.Signature(p)
		if !ok {
			continue
		}
		if _, ok := l.fresh(p, m.ID, sig); ok {
			continue
		}
		jobs = append(jobs, job{p, sig})
	}
	if len(jobs) == 0 {
		return 0, nil, nil
	}

	results := make(chan warmResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := l.src.Read(j.path)
			if err != nil {
				results <- warmResult{path: j.path, sig: j.sig, err: err, readFailed: true}
				return nil
			}
			n, err := l.count(gctx, m.Counter, string(data))
			results <- warmResult{path: j.path, sig: j.sig, n: n, err: err}
			return nil
		})
	}
	waitErr := g.Wait()
	close(results)

	counted := 0
	failed := make(map[string]bool)
	for r := range results {
		if r.readFailed {
			l.markUnknown(r.path, m.ID, r.sig)
			failed[r.path] = true
			continue
		}
		if _, err := l.record(ctx, r.path, m.ID, r.sig, r.n, r.err); err != nil {
			if ctx.Err() != nil {
				return counted, failed, ctx.Err()
			}
			failed[r.path] = true
			continue
		}
		counted++
	}
	if waitErr != nil {
		return counted, failed, waitErr
	}
	l.logger.Debug("Ledger warmed", zap.String("model", m.ID), zap.Int("counted", counted), zap.Int("failed", len(failed)), zap.Int("requested", len(paths)))
	return counted, failed, nil
}
