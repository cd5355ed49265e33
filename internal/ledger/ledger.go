// Package ledger caches per-file, per-model token counts and keeps the
// selection total consistent as files are included, excluded or edited.
package ledger

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/ctxpack/internal/catalog"
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/logging"
	"github.com/hpungsan/ctxpack/internal/tokenizer"
)

const (
	DefaultCapacity = 8192
	DefaultTimeout  = 5 * time.Second
)

// Source supplies file signatures and content.
type Source interface {
	Signature(path string) (catalog.Signature, bool)
	Read(path string) ([]byte, error)
}

// Models resolves a model id to its counter and window.
type Models interface {
	Lookup(id string) (tokenizer.Model, error)
}

// Selection lists the files whose tokens make up a total.
type Selection interface {
	Included() []string
}

// Count is the cached token count for one (path, model) pair.
type Count struct {
	Path      string            `json:"path"`
	Model     string            `json:"model"`
	Tokens    int               `json:"tokens"`
	Stale     bool              `json:"stale,omitempty"`
	Known     bool              `json:"known"`
	Signature catalog.Signature `json:"-"`
}

// Total is the token sum over a selection.
type Total struct {
	Model   string   `json:"model"`
	Tokens  int      `json:"tokens"`
	Files   int      `json:"files"`
	Unknown []string `json:"unknown,omitempty"`
	Counts  []Count  `json:"-"`
}

// Stats reports cache activity since the ledger was created.
type Stats struct {
	Hits      int `json:"hits"`
	Recounts  int `json:"recounts"`
	Timeouts  int `json:"timeouts"`
	Evictions int `json:"evictions"`
	Entries   int `json:"entries"`
}

// Options configures a Ledger.
type Options struct {
	Timeout time.Duration

	// Capacity bounds cached (path, model) entries. A selection with more
	// files than this evicts its own counts on every total; owners grow it
	// with Reserve as the catalog grows.
	Capacity int
}

type key struct {
	path  string
	model string
}

// Ledger is the token-count cache. It is not safe for concurrent use; Warm
// fans out internally but applies results on the calling goroutine.
type Ledger struct {
	src     Source
	models  Models
	timeout time.Duration
	logger  *zap.Logger

	cache    *lru.Cache[key, *Count]
	capacity int
	byPath   map[string]map[string]struct{}
	stats    Stats
}

// New creates a ledger over src using models for counting.
func New(src Source, models Models, opts Options, logger *zap.Logger) (*Ledger, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	l := &Ledger{
		src:     src,
		models:  models,
		timeout:  opts.Timeout,
		capacity: opts.Capacity,
		logger:   logging.OrNop(logger),
		byPath:   make(map[string]map[string]struct{}),
	}
	cache, err := lru.NewWithEvict[key, *Count](opts.Capacity, l.onEvicted)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	l.cache = cache
	return l, nil
}

// Reserve grows the cache to hold at least n entries. It never shrinks.
func (l *Ledger) Reserve(n int) {
	if n <= l.capacity {
		return
	}
	l.cache.Resize(n)
	l.logger.Debug("Ledger resized", zap.Int("from", l.capacity), zap.Int("to", n))
	l.capacity = n
}

// Capacity returns the current cache bound.
func (l *Ledger) Capacity() int {
	return l.capacity
}

func (l *Ledger) onEvicted(k key, _ *Count) {
	l.stats.Evictions++
	if models, ok := l.byPath[k.path]; ok {
		delete(models, k.model)
		if len(models) == 0 {
			delete(l.byPath, k.path)
		}
	}
}

func (l *Ledger) store(c *Count) {
	l.cache.Add(key{c.Path, c.Model}, c)
	models, ok := l.byPath[c.Path]
	if !ok {
		models = make(map[string]struct{})
		l.byPath[c.Path] = models
	}
	models[c.Model] = struct{}{}
}

// fresh returns the cached count when it can be served without recounting.
func (l *Ledger) fresh(path, model string, sig catalog.Signature) (*Count, bool) {
	c, ok := l.cache.Get(key{path, model})
	if !ok || c.Stale || !c.Known || c.Signature != sig {
		return nil, false
	}
	return c, true
}

// Ensure returns the token count for path under model, counting it if the
// cache has no fresh entry. A tokenizer timeout leaves the entry stale and
// unknown and returns TOKENIZER_TIMEOUT.
func (l *Ledger) Ensure(ctx context.Context, path, model string) (Count, error) {
	m, err := l.models.Lookup(model)
	if err != nil {
		return Count{}, err
	}
	sig, ok := l.src.Signature(path)
	if !ok {
		return Count{}, errors.NewStaleSelection(path)
	}
	if c, ok := l.fresh(path, m.ID, sig); ok {
		l.stats.Hits++
		return *c, nil
	}

	data, err := l.src.Read(path)
	if err != nil {
		l.markUnknown(path, m.ID, sig)
		return Count{Path: path, Model: m.ID, Stale: true, Signature: sig}, err
	}

	n, err := l.count(ctx, m.Counter, string(data))
	return l.record(ctx, path, m.ID, sig, n, err)
}

// record stores a counting outcome and translates timeouts.
func (l *Ledger) record(ctx context.Context, path, model string, sig catalog.Signature, n int, err error) (Count, error) {
	if err != nil {
		if ctx.Err() != nil {
			return Count{}, ctx.Err()
		}
		c := l.markUnknown(path, model, sig)
		if stderrors.Is(err, context.DeadlineExceeded) {
			l.stats.Timeouts++
			l.logger.Warn("Tokenizer timed out", zap.String("path", path), zap.String("model", model), zap.Duration("timeout", l.timeout))
			return *c, errors.NewTokenizerTimeout(path, model, err)
		}
		l.logger.Warn("Tokenizer failed", zap.String("path", path), zap.String("model", model), zap.Error(err))
		return *c, errors.NewInternal(err)
	}

	c := &Count{Path: path, Model: model, Tokens: n, Known: true, Signature: sig}
	l.store(c)
	l.stats.Recounts++
	return *c, nil
}

func (l *Ledger) markUnknown(path, model string, sig catalog.Signature) *Count {
	c := &Count{Path: path, Model: model, Stale: true, Known: false, Signature: sig}
	if old, ok := l.cache.Peek(key{path, model}); ok {
		c.Tokens = old.Tokens
	}
	l.store(c)
	return c
}

// count runs the counter under the ledger timeout. The counter runs on its
// own goroutine so a counter that ignores ctx still cannot block past the
// deadline.
func (l *Ledger) count(ctx context.Context, c tokenizer.Counter, text string) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := c.CountTokens(cctx, text)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		return r.n, r.err
	case <-cctx.Done():
		return 0, cctx.Err()
	}
}

// TotalFor sums the counts of exactly the included files. Files whose count
// could not be obtained (timeout, read error) are listed in Unknown and
// contribute nothing. The result always equals a from-scratch recount.
func (l *Ledger) TotalFor(ctx context.Context, sel Selection, model string) (Total, error) {
	return l.sum(ctx, sel.Included(), model, nil)
}

// WarmTotal warms the included files concurrently and then sums them.
// Files whose count failed during the warm pass are reported unknown
// without a second attempt, so a slow tokenizer costs one timeout per
// file, paid in parallel.
func (l *Ledger) WarmTotal(ctx context.Context, sel Selection, model string, workers int) (Total, error) {
	paths := sel.Included()
	_, failed, err := l.warm(ctx, paths, model, workers)
	if err != nil && ctx.Err() != nil {
		return Total{}, ctx.Err()
	}
	return l.sum(ctx, paths, model, failed)
}

func (l *Ledger) sum(ctx context.Context, paths []string, model string, skip map[string]bool) (Total, error) {
	m, err := l.models.Lookup(model)
	if err != nil {
		return Total{}, err
	}

	total := Total{Model: m.ID}
	for _, p := range paths {
		if skip[p] {
			total.Unknown = append(total.Unknown, p)
			continue
		}
		c, err := l.Ensure(ctx, p, m.ID)
		if err != nil {
			if errors.Is(err, errors.ErrTokenizerTimeout) || errors.Is(err, errors.ErrIO) ||
				errors.Is(err, errors.ErrStaleSelection) || errors.Is(err, errors.ErrNotFound) ||
				errors.Is(err, errors.ErrInternal) {
				total.Unknown = append(total.Unknown, p)
				continue
			}
			return Total{}, err
		}
		total.Tokens += c.Tokens
		total.Files++
		total.Counts = append(total.Counts, c)
	}
	return total, nil
}

// Evict removes every model's entry for path. Called when the file is
// deselected, so re-selecting it recounts exactly once.
func (l *Ledger) Evict(path string) {
	models := l.byPath[path]
	keys := make([]key, 0, len(models))
	for m := range models {
		keys = append(keys, key{path, m})
	}
	for _, k := range keys {
		l.cache.Remove(k)
	}
	delete(l.byPath, path)
}

// Invalidate marks every entry for path stale so the next Ensure recounts.
func (l *Ledger) Invalidate(path string) {
	for m := range l.byPath[path] {
		if c, ok := l.cache.Peek(key{path, m}); ok {
			c.Stale = true
		}
	}
}

// Peek returns the cached count without counting or touching recency.
func (l *Ledger) Peek(path, model string) (Count, bool) {
	c, ok := l.cache.Peek(key{path, model})
	if !ok {
		return Count{}, false
	}
	return *c, true
}

// Paths returns every path with at least one cached entry, sorted.
func (l *Ledger) Paths() []string {
	out := make([]string, 0, len(l.byPath))
	for p := range l.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Stats returns a snapshot of cache counters.
func (l *Ledger) Stats() Stats {
	s := l.stats
	s.Entries = l.cache.Len()
	return s
}
