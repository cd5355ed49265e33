package selection

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// Action is what a pattern does to the files it matches.
type Action string

const (
	Include Action = "include"
	Exclude Action = "exclude"
)

// PatternOp is one glob mutation.
type PatternOp struct {
	Pattern string `json:"pattern"`
	Action  Action `json:"action"`
}

// Toggle flips the node at p. A file flips; a directory sets every
// descendant file to included unless it is already fully included, in which
// case every descendant is excluded. Unknown paths leave the tree untouched
// and return a STALE_SELECTION warning.
func (t *Tree) Toggle(p string) (Change, error) {
	n, ok := t.Node(p)
	if !ok {
		return Change{}, errors.NewStaleSelection(p)
	}

	target := n.state != Included
	targets := make(map[*Node]bool)
	collectFiles(n, func(f *Node) { targets[f] = target })
	return t.apply(targets), nil
}

// ApplyPattern includes or excludes every catalogued file matching glob.
// `*` matches within a path segment and `**` across segments. A literal
// directory path applies to all files below it. A malformed glob returns
// PATTERN_SYNTAX and leaves the tree untouched.
func (t *Tree) ApplyPattern(glob string, action Action) (Change, error) {
	return t.ApplyPatterns([]PatternOp{{Pattern: glob, Action: action}})
}

// ApplyPatterns applies ops in order; when patterns overlap, the last one
// applied wins. Every op is validated before any is applied.
func (t *Tree) ApplyPatterns(ops []PatternOp) (Change, error) {
	for _, op := range ops {
		if err := validatePattern(op.Pattern); err != nil {
			return Change{}, err
		}
		if op.Action != Include && op.Action != Exclude {
			return Change{}, errors.NewInvalidRequest("action must be include or exclude, got " + string(op.Action))
		}
	}

	targets := make(map[*Node]bool)
	for _, op := range ops {
		pattern := normalizePattern(op.Pattern)
		include := op.Action == Include
		for _, f := range t.files {
			if matchPath(pattern, f.path) {
				targets[f] = include
			}
		}
	}
	return t.apply(targets), nil
}

// Matches returns the catalogued files a glob selects, without mutating.
func (t *Tree) Matches(glob string) ([]string, error) {
	if err := validatePattern(glob); err != nil {
		return nil, err
	}
	pattern := normalizePattern(glob)
	var out []string
	for _, f := range t.files {
		if matchPath(pattern, f.path) {
			out = append(out, f.path)
		}
	}
	return out, nil
}

// SetIncluded replaces the whole selection with paths. Paths that are not
// catalogued files are returned as stale and otherwise ignored.
func (t *Tree) SetIncluded(paths []string) (Change, []string) {
	want := make(map[string]bool, len(paths))
	var stale []string
	for _, p := range paths {
		n, ok := t.nodes[cleanPath(p)]
		if !ok || n.kind != File {
			stale = append(stale, p)
			continue
		}
		want[n.path] = true
	}
	sort.Strings(stale)

	targets := make(map[*Node]bool, len(t.files))
	for _, f := range t.files {
		targets[f] = want[f.path]
	}
	return t.apply(targets), stale
}

// apply commits target states. The change set is computed in full before
// any node is touched, so a mutation is all-or-nothing.
func (t *Tree) apply(targets map[*Node]bool) Change {
	var change Change
	var flipped []*Node
	for f, include := range targets {
		current := f.state == Included
		if current == include {
			continue
		}
		flipped = append(flipped, f)
		if include {
			change.Included = append(change.Included, f.path)
		} else {
			change.Excluded = append(change.Excluded, f.path)
		}
	}
	sort.Strings(change.Included)
	sort.Strings(change.Excluded)
	if len(flipped) == 0 {
		return change
	}

	dirty := make(map[*Node]bool)
	for _, f := range flipped {
		if targets[f] {
			f.state = Included
		} else {
			f.state = Excluded
		}
		for d := f.parent; d != nil && !dirty[d]; d = d.parent {
			dirty[d] = true
		}
	}
	t.recompute(dirty)

	if t.evictor != nil {
		for _, p := range change.Excluded {
			t.evictor.Evict(p)
		}
	}
	return change
}

// recompute re-derives the dirty directories deepest first.
func (t *Tree) recompute(dirty map[*Node]bool) {
	dirs := make([]*Node, 0, len(dirty))
	for d := range dirty {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].depth != dirs[j].depth {
			return dirs[i].depth > dirs[j].depth
		}
		return dirs[i].path < dirs[j].path
	})
	for _, d := range dirs {
		d.state = reduce(d.children)
	}
}

func collectFiles(n *Node, fn func(*Node)) {
	if n.kind == File {
		fn(n)
		return
	}
	for _, c := range n.children {
		collectFiles(c, fn)
	}
}

func validatePattern(raw string) error {
	p := normalizePattern(raw)
	if p == "" || !doublestar.ValidatePattern(p) {
		return errors.NewPatternSyntax(raw)
	}
	return nil
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimPrefix(p, "/")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// matchPath matches a normalized glob against a file path. A pattern
// without glob syntax that names a directory matches every file below it.
func matchPath(pattern, p string) bool {
	if !strings.ContainsAny(pattern, "*?[{\\") {
		return p == pattern || strings.HasPrefix(p, pattern+"/")
	}
	ok, _ := doublestar.Match(pattern, p)
	return ok
}

func matchesAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if matchPath(normalizePattern(pat), p) {
			return true
		}
	}
	return false
}
