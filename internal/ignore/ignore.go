// Package ignore builds the path predicate used to keep files out of the
// catalog: built-in patterns, the project's ignore files and user extras.
package ignore

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileNames are the ignore files read from the project root and the git root.
var FileNames = []string{".gitignore", ".dockerignore", ".npmignore"}

// DefaultPatterns are always ignored regardless of ignore files.
func DefaultPatterns() []string {
	return []string{
		".git", ".svn", ".hg", ".bzr",
		".vscode", ".idea", ".sublime-*", "*.swp", "*.swo", "*~",
		"node_modules", "bower_components",
		"__pycache__", "*.pyc", "*.pyo", "*.pyd", ".Python",
		"target", ".gradle", ".m2",
		".stack-work", ".cabal-sandbox",
		".coverage", "htmlcov", ".pytest_cache", ".tox",
		".DS_Store", "Thumbs.db", "desktop.ini",
	}
}

// Options configures Load.
type Options struct {
	// Extra patterns in gitignore syntax, appended after file patterns.
	Extra []string
	// Always lists root-relative paths that are ignored unconditionally
	// (the state file and the bundle output).
	Always []string
	// SkipIgnoreFiles disables reading .gitignore and friends.
	SkipIgnoreFiles bool
}

// Matcher reports whether a root-relative, slash-separated path is ignored.
type Matcher struct {
	gi       *gitignore.GitIgnore
	always   map[string]bool
	patterns []string
	sources  []string
}

// Load compiles the ignore rules for root.
func Load(root string, opts Options) (*Matcher, error) {
	patterns := DefaultPatterns()
	var sources []string

	if !opts.SkipIgnoreFiles {
		dirs := []string{root}
		if gitRoot := FindGitRoot(root); gitRoot != "" && gitRoot != root {
			dirs = append(dirs, gitRoot)
		}
		for _, dir := range dirs {
			for _, name := range FileNames {
				path := filepath.Join(dir, name)
				lines, err := readPatterns(path)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						continue
					}
					return nil, err
				}
				sources = append(sources, path)
				patterns = append(patterns, lines...)
			}
		}
	}

	for _, p := range opts.Extra {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}

	m := &Matcher{
		gi:       gitignore.CompileIgnoreLines(patterns...),
		always:   make(map[string]bool, len(opts.Always)),
		patterns: patterns,
		sources:  sources,
	}
	m.Add(opts.Always...)
	return m, nil
}

// Match reports whether path is ignored. Directory paths carry a trailing
// slash so that directory-only patterns ("build/") apply to them.
func (m *Matcher) Match(path string) bool {
	trimmed := strings.TrimSuffix(path, "/")
	if m.always[trimmed] {
		return true
	}
	if m.gi.MatchesPath(path) {
		return true
	}
	return trimmed != path && m.gi.MatchesPath(trimmed)
}

// Add ignores more root-relative paths unconditionally.
func (m *Matcher) Add(paths ...string) {
	for _, p := range paths {
		p = filepath.ToSlash(filepath.Clean(p))
		if p != "." && p != "" && !strings.HasPrefix(p, "../") {
			m.always[p] = true
		}
	}
}

// Patterns returns every compiled pattern in load order.
func (m *Matcher) Patterns() []string {
	return m.patterns
}

// Sources returns the ignore files that contributed patterns.
func (m *Matcher) Sources() []string {
	return m.sources
}

// FindGitRoot walks upward from start for a directory containing .git.
// Returns "" when none is found.
func FindGitRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func readPatterns(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
