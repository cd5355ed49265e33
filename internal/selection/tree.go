// Package selection holds the tri-state selection tree: which catalogued
// files are included in the bundle, with directory states derived from
// their descendants.
package selection

import (
	"path"
	"sort"

	"github.com/hpungsan/ctxpack/internal/catalog"
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/state"
)

// Evictor is told about every file that transitions to excluded.
type Evictor interface {
	Evict(path string)
}

// Change lists the files whose state actually changed, each sorted.
type Change struct {
	Included []string `json:"included"`
	Excluded []string `json:"excluded"`
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return len(c.Included) == 0 && len(c.Excluded) == 0
}

// Summary aggregates the included files.
type Summary struct {
	FileCount  int   `json:"file_count"`
	TotalBytes int64 `json:"total_bytes"`
	TotalFiles int   `json:"total_files"`
}

// Tree is the selection state for one catalog. It is not safe for
// concurrent use.
type Tree struct {
	cat     *catalog.Catalog
	root    *Node
	nodes   map[string]*Node
	files   []*Node // catalog order
	evictor Evictor
}

// Build creates a tree over cat. A file starts included when it is listed
// in persisted or matches one of the autoInclude globs. Persisted paths that
// are no longer catalogued are returned as stale. Build is deterministic:
// the same inputs always yield the same tree.
func Build(cat *catalog.Catalog, persisted state.Selection, autoInclude []string) (*Tree, []string, error) {
	for _, p := range autoInclude {
		if err := validatePattern(p); err != nil {
			return nil, nil, err
		}
	}

	t := &Tree{
		cat:   cat,
		root:  &Node{path: "", name: ".", kind: Dir},
		nodes: make(map[string]*Node, len(cat.Entries)*2),
	}
	t.nodes[""] = t.root

	for _, p := range cat.Files() {
		t.files = append(t.files, t.insertFile(p))
	}
	t.sortChildren(t.root)

	want := make(map[string]bool, len(persisted.IncludedPaths))
	var stale []string
	for _, p := range persisted.IncludedPaths {
		n, ok := t.nodes[cleanPath(p)]
		if !ok || n.kind != File {
			stale = append(stale, p)
			continue
		}
		want[n.path] = true
	}
	sort.Strings(stale)

	for _, f := range t.files {
		if want[f.path] || matchesAny(autoInclude, f.path) {
			f.state = Included
		}
	}
	t.recomputeAll(t.root)

	return t, stale, nil
}

// NewMatches returns the catalog files missing from known that match one of
// globs, in path order. It is how auto-include globs reach files that
// appeared after the selection was saved.
func NewMatches(cat *catalog.Catalog, known map[string]bool, globs []string) ([]string, error) {
	for _, p := range globs {
		if err := validatePattern(p); err != nil {
			return nil, err
		}
	}
	var out []string
	for _, p := range cat.Files() {
		if !known[p] && matchesAny(globs, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *Tree) insertFile(p string) *Node {
	parent := t.ensureDir(path.Dir(p))
	n := &Node{
		path:   p,
		name:   path.Base(p),
		kind:   File,
		state:  Excluded,
		depth:  parent.depth + 1,
		parent: parent,
	}
	parent.children = append(parent.children, n)
	t.nodes[p] = n
	return n
}

func (t *Tree) ensureDir(dir string) *Node {
	if dir == "." || dir == "" {
		return t.root
	}
	if n, ok := t.nodes[dir]; ok {
		return n
	}
	parent := t.ensureDir(path.Dir(dir))
	n := &Node{
		path:   dir,
		name:   path.Base(dir),
		kind:   Dir,
		depth:  parent.depth + 1,
		parent: parent,
	}
	parent.children = append(parent.children, n)
	t.nodes[dir] = n
	return n
}

func (t *Tree) sortChildren(n *Node) {
	sort.Slice(n.children, func(i, j int) bool { return n.children[i].path < n.children[j].path })
	for _, c := range n.children {
		if c.kind == Dir {
			t.sortChildren(c)
		}
	}
}

// recomputeAll derives every directory state under n bottom-up.
func (t *Tree) recomputeAll(n *Node) State {
	if n.kind == File {
		return n.state
	}
	for _, c := range n.children {
		t.recomputeAll(c)
	}
	n.state = reduce(n.children)
	return n.state
}

// SetEvictor registers the receiver of file-excluded transitions.
func (t *Tree) SetEvictor(e Evictor) {
	t.evictor = e
}

// Catalog returns the catalog the tree was built over.
func (t *Tree) Catalog() *catalog.Catalog {
	return t.cat
}

// Root returns the root directory node.
func (t *Tree) Root() *Node {
	return t.root
}

// Node returns the node at p. "" and "." address the root.
func (t *Tree) Node(p string) (*Node, bool) {
	n, ok := t.nodes[cleanPath(p)]
	return n, ok
}

// State returns the state at p; unknown paths report Excluded and false.
func (t *Tree) State(p string) (State, bool) {
	n, ok := t.Node(p)
	if !ok {
		return Excluded, false
	}
	return n.state, true
}

// Included returns the included file paths in catalog order.
func (t *Tree) Included() []string {
	var out []string
	for _, f := range t.files {
		if f.state == Included {
			out = append(out, f.path)
		}
	}
	return out
}

// IsIncluded reports whether the file at p is included.
func (t *Tree) IsIncluded(p string) bool {
	n, ok := t.nodes[p]
	return ok && n.kind == File && n.state == Included
}

// Walk visits every node depth-first in path order, root first. Returning
// SkipChildren from fn skips a directory's descendants.
func (t *Tree) Walk(fn func(n *Node) error) error {
	return walk(t.root, fn)
}

type skipChildren struct{}

func (skipChildren) Error() string { return "skip children" }

// SkipChildren can be returned from a Walk callback to prune a directory.
var SkipChildren error = skipChildren{}

func walk(n *Node, fn func(n *Node) error) error {
	if err := fn(n); err != nil {
		if err == SkipChildren {
			return nil
		}
		return err
	}
	for _, c := range n.children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Summary counts included files and their total size.
func (t *Tree) Summary() Summary {
	s := Summary{TotalFiles: len(t.files)}
	for _, f := range t.files {
		if f.state != Included {
			continue
		}
		s.FileCount++
		if e, ok := t.cat.Lookup(f.path); ok {
			s.TotalBytes += e.Size
		}
	}
	return s
}

// Serialize returns the persisted form: the sorted list of included files.
func (t *Tree) Serialize() state.Selection {
	sel := state.Selection{Version: state.CurrentVersion, IncludedPaths: []string{}}
	for _, f := range t.files {
		if f.state == Included {
			sel.IncludedPaths = append(sel.IncludedPaths, f.path)
		}
	}
	sort.Strings(sel.IncludedPaths)
	return sel
}

// Verify checks that every file is included or excluded and every
// directory state equals the reduction of its children.
func (t *Tree) Verify() error {
	var verr error
	_ = t.Walk(func(n *Node) error {
		if n.kind == File {
			if n.state == Partial {
				verr = errors.NewInvariantViolation(n.path, "file node is partial")
				return verr
			}
			return nil
		}
		if want := reduce(n.children); n.state != want {
			verr = errors.NewInvariantViolation(displayPath(n.path),
				"directory state is "+n.state.String()+", children reduce to "+want.String())
			return verr
		}
		return nil
	})
	return verr
}

func displayPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}
