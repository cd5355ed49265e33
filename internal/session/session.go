// Package session holds one project's working state: the catalog, the
// selection tree, the token ledger and the configuration they were built
// from. A Session is not safe for concurrent use; callers that serve
// requests in parallel hold their own lock.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/ctxpack/internal/catalog"
	"github.com/hpungsan/ctxpack/internal/config"
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/ignore"
	"github.com/hpungsan/ctxpack/internal/ledger"
	"github.com/hpungsan/ctxpack/internal/logging"
	"github.com/hpungsan/ctxpack/internal/render"
	"github.com/hpungsan/ctxpack/internal/selection"
	"github.com/hpungsan/ctxpack/internal/state"
	"github.com/hpungsan/ctxpack/internal/tokenizer"
)

// Options configures Open.
type Options struct {
	// Root is the project directory. Empty means the working directory.
	Root string

	// GlobalDir holds the user-wide config.json. Empty means ~/.ctxpack.
	GlobalDir string

	// Config replaces config loading entirely when set.
	Config *config.Config

	// StateFile and Model override the configured values when set.
	StateFile string
	Model     string

	// Models replaces the default tokenizer registry.
	Models *tokenizer.Registry

	Logger *zap.Logger
}

// Session is an opened project.
type Session struct {
	Root        string
	ProjectType string
	Config      *config.Config
	Catalog     *catalog.Catalog
	Tree        *selection.Tree
	Ledger      *ledger.Ledger
	Models      *tokenizer.Registry
	Ignore      *ignore.Matcher

	// Warnings collects non-fatal problems: unreadable paths, stale
	// selection entries, a reset selection file.
	Warnings []*errors.PackError

	statePath string
	model     string
	outputs   []string
	fresh     bool
	dirty     bool
	logger    *zap.Logger
}

// DefaultGlobalDir returns ~/.ctxpack.
func DefaultGlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, config.DirName), nil
}

// Open loads configuration, scans the project and reconciles the persisted
// selection against what is on disk. Auto-include globs apply to every file
// when nothing usable was persisted, and otherwise only to files that were
// not catalogued when the selection was last saved.
func Open(ctx context.Context, opts Options) (*Session, error) {
	logger := logging.OrNop(opts.Logger)

	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid root: %v", err))
	}

	cfg := opts.Config
	if cfg == nil {
		if cfg, err = loadConfig(opts.GlobalDir, root); err != nil {
			return nil, err
		}
	}
	if opts.StateFile != "" {
		cfg.StateFile = opts.StateFile
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}

	s := &Session{
		Root:        root,
		ProjectType: cfg.ProjectType,
		Config:      cfg,
		Models:      opts.Models,
		statePath:   resolve(root, cfg.StateFile),
		model:       cfg.Model,
		logger:      logger,
	}
	if s.ProjectType == "" {
		s.ProjectType = catalog.DetectProjectType(root)
	}
	if s.Models == nil {
		s.Models = tokenizer.DefaultRegistry(tokenizer.Options{
			Windows:      cfg.TokenLimits,
			GeminiAPIKey: cfg.GeminiAPIKey,
			Remote:       cfg.RemoteTokenizers,
		})
	}
	if _, err := s.Models.Lookup(s.model); err != nil {
		return nil, err
	}

	persisted, fresh, err := s.loadState()
	if err != nil {
		return nil, err
	}
	s.fresh = fresh
	s.outputs = persisted.Outputs

	s.Ignore, err = ignore.Load(root, ignore.Options{
		Extra:           cfg.Exclude,
		Always:          s.alwaysIgnored(),
		SkipIgnoreFiles: cfg.NoGitignore,
	})
	if err != nil {
		return nil, err
	}

	if err := s.scan(ctx); err != nil {
		return nil, err
	}

	autoInclude := cfg.Include
	if known := persisted.Known(); known != nil {
		added, err := selection.NewMatches(s.Catalog, known, cfg.Include)
		if err != nil {
			return nil, err
		}
		if len(added) > 0 {
			persisted.IncludedPaths = append(persisted.IncludedPaths, added...)
			s.dirty = true
		}
		autoInclude = nil
	}
	tree, stale, err := selection.Build(s.Catalog, persisted, autoInclude)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		s.warn(errors.NewStaleSelection(stale...))
		s.dirty = true
	}
	s.Tree = tree

	capacity := cfg.LedgerCapacity
	if n := s.ledgerNeed(); n > capacity {
		capacity = n
	}
	s.Ledger, err = ledger.New(s, s.Models, ledger.Options{
		Timeout:  time.Duration(cfg.TokenizerTimeoutMS) * time.Millisecond,
		Capacity: capacity,
	}, logger)
	if err != nil {
		return nil, err
	}
	s.Tree.SetEvictor(s.Ledger)

	logger.Debug("Session opened",
		zap.String("root", root),
		zap.String("project_type", s.ProjectType),
		zap.Int("files", s.Catalog.Len()),
		zap.Int("included", len(s.Tree.Included())),
		zap.Bool("fresh", fresh),
	)
	return s, nil
}

func loadConfig(globalDir, root string) (*config.Config, error) {
	if globalDir == "" {
		dir, err := DefaultGlobalDir()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		globalDir = dir
	}
	cfg, err := config.LoadWithRepo(globalDir, root)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to load config: %v", err))
	}
	if err := config.ApplyEnv(cfg, root); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return cfg, nil
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// alwaysIgnored lists the tool's own files relative to root: the state
// file, the configured bundle and its manifest, and every bundle written
// inside the project before.
func (s *Session) alwaysIgnored() []string {
	candidates := []string{s.statePath}
	if out := s.OutputPath(); out != "" {
		candidates = append(candidates, out, render.ManifestPath(out))
	}

	var rels []string
	for _, p := range candidates {
		if rel, ok := s.relative(p); ok {
			rels = append(rels, rel)
		}
	}
	return append(rels, s.outputs...)
}

// relative returns p relative to root, slash-separated, when p is inside it.
func (s *Session) relative(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	rel, err := filepath.Rel(s.Root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ledgerNeed is the cache size that holds every catalogued file under every
// registered model.
func (s *Session) ledgerNeed() int {
	return s.Catalog.Len() * max(len(s.Models.Models()), 1)
}

// RecordOutput remembers files written inside the project (a bundle, a
// manifest) so that this and later scans leave them out. Paths outside the
// root or already ignored are skipped. The list is persisted with the
// selection.
func (s *Session) RecordOutput(paths ...string) {
	for _, p := range paths {
		rel, ok := s.relative(p)
		if !ok || slices.Contains(s.outputs, rel) || s.Ignore.Match(rel) {
			continue
		}
		s.outputs = append(s.outputs, rel)
		s.Ignore.Add(rel)
		s.dirty = true
		s.logger.Debug("Output recorded", zap.String("path", rel))
	}
}

// Outputs returns the recorded output paths relative to root.
func (s *Session) Outputs() []string {
	return s.outputs
}

func (s *Session) scan(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cat, err := catalog.Scan(s.Root, s.Ignore.Match, s.Config.MaxFileSizeBytes(), s.logger)
	if err != nil {
		return err
	}
	for _, e := range cat.Errors {
		s.warn(e)
	}
	s.Catalog = cat
	return nil
}

// loadState reads the persisted selection. fresh reports that nothing
// usable was persisted: the file is missing or was reset.
func (s *Session) loadState() (state.Selection, bool, error) {
	if _, err := os.Stat(s.statePath); os.IsNotExist(err) {
		return state.Empty(), true, nil
	}
	sel, err := state.Load(s.statePath)
	if err != nil {
		if errors.Is(err, errors.ErrVersionMismatch) {
			pErr, _ := errors.As(err)
			s.warn(pErr)
			s.dirty = true
			return sel, true, nil
		}
		return sel, false, err
	}
	return sel, false, nil
}

func (s *Session) warn(e *errors.PackError) {
	s.Warnings = append(s.Warnings, e)
	s.logger.Warn("Session warning", zap.String("code", string(e.Code)), zap.String("message", e.Message))
}

// Signature implements ledger.Source over the current catalog.
func (s *Session) Signature(p string) (catalog.Signature, bool) {
	return s.Catalog.Signature(p)
}

// Read implements ledger.Source over the current catalog.
func (s *Session) Read(p string) ([]byte, error) {
	return s.Catalog.Read(p)
}

// StatePath returns the absolute selection file path.
func (s *Session) StatePath() string {
	return s.statePath
}

// OutputPath returns the absolute default bundle path.
func (s *Session) OutputPath() string {
	return resolve(s.Root, s.Config.OutputFile)
}

// Model returns the default model id.
func (s *Session) Model() string {
	return s.model
}

// Fresh reports whether the selection started without persisted state.
func (s *Session) Fresh() bool {
	return s.fresh
}

// Dirty reports whether the selection changed since it was loaded or saved.
func (s *Session) Dirty() bool {
	return s.dirty
}

// Save persists the selection atomically.
func (s *Session) Save() error {
	if err := s.Tree.Verify(); err != nil {
		return err
	}
	sel := s.Tree.Serialize()
	sel.KnownPaths = s.Catalog.Files()
	sel.Outputs = s.outputs
	if err := state.Save(s.statePath, sel); err != nil {
		return err
	}
	s.dirty = false
	s.logger.Debug("Selection saved", zap.String("path", s.statePath), zap.Int("included", len(s.Tree.Included())))
	return nil
}
