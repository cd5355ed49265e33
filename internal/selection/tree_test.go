package selection

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/hpungsan/ctxpack/internal/catalog"
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/state"
)

func newCatalog(paths ...string) *catalog.Catalog {
	entries := make([]catalog.Entry, len(paths))
	for i, p := range paths {
		entries[i] = catalog.Entry{Path: p, Size: int64(10 * (i + 1))}
	}
	return catalog.New("/project", entries)
}

func buildTree(t *testing.T, cat *catalog.Catalog, included ...string) *Tree {
	t.Helper()
	tree, stale, err := Build(cat, state.Selection{Version: state.CurrentVersion, IncludedPaths: included}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("Build() stale = %v, want none", stale)
	}
	return tree
}

func mustState(t *testing.T, tree *Tree, p string) State {
	t.Helper()
	s, ok := tree.State(p)
	if !ok {
		t.Fatalf("State(%q): unknown path", p)
	}
	return s
}

type recordingEvictor struct {
	evicted []string
}

func (r *recordingEvictor) Evict(p string) {
	r.evicted = append(r.evicted, p)
}

func TestApplyPattern_RecursiveGlob(t *testing.T) {
	cat := newCatalog("README.md", "src/a.py", "src/b.js", "tests/c.py")
	tree := buildTree(t, cat)

	change, err := tree.ApplyPattern("**/*.py", Include)
	if err != nil {
		t.Fatalf("ApplyPattern() error = %v", err)
	}

	want := []string{"src/a.py", "tests/c.py"}
	if !reflect.DeepEqual(tree.Included(), want) {
		t.Errorf("Included() = %v, want %v", tree.Included(), want)
	}
	if !reflect.DeepEqual(change.Included, want) || len(change.Excluded) != 0 {
		t.Errorf("Change = %+v", change)
	}
	if got := mustState(t, tree, "src"); got != Partial {
		t.Errorf("src = %v, want partial", got)
	}
	if got := mustState(t, tree, "tests"); got != Included {
		t.Errorf("tests = %v, want included", got)
	}
	if got := tree.Root().State(); got != Partial {
		t.Errorf("root = %v, want partial", got)
	}
	if err := tree.Verify(); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestApplyPattern_StarStaysInSegment(t *testing.T) {
	cat := newCatalog("main.py", "src/a.py", "src/sub/d.py")
	tree := buildTree(t, cat)

	if _, err := tree.ApplyPattern("src/*.py", Include); err != nil {
		t.Fatalf("ApplyPattern() error = %v", err)
	}
	if want := []string{"src/a.py"}; !reflect.DeepEqual(tree.Included(), want) {
		t.Errorf("src/*.py selected %v, want %v", tree.Included(), want)
	}

	if _, err := tree.ApplyPattern("*.py", Include); err != nil {
		t.Fatalf("ApplyPattern() error = %v", err)
	}
	if !tree.IsIncluded("main.py") || tree.IsIncluded("src/sub/d.py") {
		t.Errorf("*.py should match only top-level files, included = %v", tree.Included())
	}
}

func TestApplyPattern_DirectoryLiteral(t *testing.T) {
	cat := newCatalog("docs/a.md", "docs/deep/b.md", "docsite/c.md")
	tree := buildTree(t, cat)

	if _, err := tree.ApplyPattern("./docs/", Include); err != nil {
		t.Fatalf("ApplyPattern() error = %v", err)
	}
	want := []string{"docs/a.md", "docs/deep/b.md"}
	if !reflect.DeepEqual(tree.Included(), want) {
		t.Errorf("Included() = %v, want %v", tree.Included(), want)
	}
}

func TestApplyPattern_SyntaxErrorLeavesTreeUntouched(t *testing.T) {
	cat := newCatalog("a.go", "b/c.go")
	tree := buildTree(t, cat, "a.go")
	before := tree.Serialize()

	_, err := tree.ApplyPattern("b/[", Exclude)
	if !errors.Is(err, errors.ErrPatternSyntax) {
		t.Fatalf("err = %v, want PATTERN_SYNTAX", err)
	}
	if !reflect.DeepEqual(tree.Serialize(), before) {
		t.Errorf("selection changed after syntax error")
	}

	// One bad op rejects the whole batch.
	_, err = tree.ApplyPatterns([]PatternOp{
		{Pattern: "**/*.go", Action: Include},
		{Pattern: "{unclosed", Action: Exclude},
	})
	if !errors.Is(err, errors.ErrPatternSyntax) {
		t.Fatalf("err = %v, want PATTERN_SYNTAX", err)
	}
	if !reflect.DeepEqual(tree.Serialize(), before) {
		t.Errorf("selection changed after rejected batch")
	}

	if _, err := tree.ApplyPattern("", Include); !errors.Is(err, errors.ErrPatternSyntax) {
		t.Errorf("empty pattern err = %v, want PATTERN_SYNTAX", err)
	}
	if _, err := tree.ApplyPattern("*.go", Action("toggle")); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("bad action err = %v, want INVALID_REQUEST", err)
	}
}

func TestApplyPatterns_LastAppliedWins(t *testing.T) {
	cat := newCatalog("src/a.py", "tests/c.py", "tests/d.py")

	tree := buildTree(t, cat)
	if _, err := tree.ApplyPatterns([]PatternOp{
		{Pattern: "**/*.py", Action: Include},
		{Pattern: "tests/**", Action: Exclude},
	}); err != nil {
		t.Fatalf("ApplyPatterns() error = %v", err)
	}
	if want := []string{"src/a.py"}; !reflect.DeepEqual(tree.Included(), want) {
		t.Errorf("include then exclude: Included() = %v, want %v", tree.Included(), want)
	}

	tree = buildTree(t, cat)
	change, err := tree.ApplyPatterns([]PatternOp{
		{Pattern: "tests/**", Action: Exclude},
		{Pattern: "**/*.py", Action: Include},
	})
	if err != nil {
		t.Fatalf("ApplyPatterns() error = %v", err)
	}
	if len(tree.Included()) != 3 {
		t.Errorf("exclude then include: Included() = %v, want all", tree.Included())
	}
	if len(change.Included) != 3 || len(change.Excluded) != 0 {
		t.Errorf("Change = %+v, want net change of 3 inclusions", change)
	}
}

func TestMatches_DoesNotMutate(t *testing.T) {
	tree := buildTree(t, newCatalog("a.go", "b.go", "c.md"))

	got, err := tree.Matches("*.go")
	if err != nil {
		t.Fatalf("Matches() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a.go", "b.go"}) {
		t.Errorf("Matches() = %v", got)
	}
	if len(tree.Included()) != 0 {
		t.Error("Matches() must not change the selection")
	}
}

func TestToggle_DirectoryRoundTrip(t *testing.T) {
	cat := newCatalog("lib/x.go", "lib/y.go", "main.go")
	tree := buildTree(t, cat, "main.go")
	before := tree.Serialize()

	change, err := tree.Toggle("lib")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !reflect.DeepEqual(change.Included, []string{"lib/x.go", "lib/y.go"}) {
		t.Errorf("first toggle Change = %+v", change)
	}
	if got := mustState(t, tree, "lib"); got != Included {
		t.Errorf("lib = %v, want included", got)
	}

	change, err = tree.Toggle("lib/")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !reflect.DeepEqual(change.Excluded, []string{"lib/x.go", "lib/y.go"}) {
		t.Errorf("second toggle Change = %+v", change)
	}
	if !reflect.DeepEqual(tree.Serialize(), before) {
		t.Errorf("double toggle did not round-trip: %v vs %v", tree.Serialize(), before)
	}
}

func TestToggle_PartialDirectoryIncludesAll(t *testing.T) {
	tree := buildTree(t, newCatalog("pkg/a.go", "pkg/b.go", "pkg/sub/c.go"), "pkg/a.go")

	if got := mustState(t, tree, "pkg"); got != Partial {
		t.Fatalf("pkg = %v, want partial", got)
	}
	if _, err := tree.Toggle("pkg"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if len(tree.Included()) != 3 {
		t.Errorf("Included() = %v, want all three", tree.Included())
	}
}

func TestToggle_FileAndRoot(t *testing.T) {
	tree := buildTree(t, newCatalog("a.go", "b/c.go"))

	if _, err := tree.Toggle("b/c.go"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got := mustState(t, tree, "b"); got != Included {
		t.Errorf("b = %v, want included", got)
	}
	if got := tree.Root().State(); got != Partial {
		t.Errorf("root = %v, want partial", got)
	}

	if _, err := tree.Toggle("."); err != nil {
		t.Fatalf("Toggle(root) error = %v", err)
	}
	if tree.Root().State() != Included {
		t.Errorf("root = %v after toggling partial root, want included", tree.Root().State())
	}
}

func TestToggle_UnknownPathIsStaleNoop(t *testing.T) {
	tree := buildTree(t, newCatalog("a.go"), "a.go")

	change, err := tree.Toggle("vanished.go")
	if !errors.Is(err, errors.ErrStaleSelection) {
		t.Fatalf("err = %v, want STALE_SELECTION", err)
	}
	pErr, _ := errors.As(err)
	if pErr.Fatal() {
		t.Error("stale toggle must not be fatal")
	}
	if !change.Empty() {
		t.Errorf("Change = %+v, want empty", change)
	}
	if !tree.IsIncluded("a.go") {
		t.Error("selection changed after stale toggle")
	}
}

func TestEvictor_CalledForExcludedTransitionsOnly(t *testing.T) {
	tree := buildTree(t, newCatalog("d/a.go", "d/b.go", "d/c.go"), "d/a.go", "d/b.go")
	ev := &recordingEvictor{}
	tree.SetEvictor(ev)

	// partial -> included: no evictions
	if _, err := tree.Toggle("d"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if len(ev.evicted) != 0 {
		t.Fatalf("evicted on include: %v", ev.evicted)
	}

	// included -> excluded: every file evicted once
	if _, err := tree.Toggle("d"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	sort.Strings(ev.evicted)
	if !reflect.DeepEqual(ev.evicted, []string{"d/a.go", "d/b.go", "d/c.go"}) {
		t.Errorf("evicted = %v", ev.evicted)
	}

	// already excluded: no further evictions
	ev.evicted = nil
	if _, err := tree.ApplyPattern("d/**", Exclude); err != nil {
		t.Fatalf("ApplyPattern() error = %v", err)
	}
	if len(ev.evicted) != 0 {
		t.Errorf("evicted files that were already excluded: %v", ev.evicted)
	}
}

func TestBuild_ReconcilesPersistedState(t *testing.T) {
	cat := newCatalog("src/a.py", "src/new.py", "tests/c.py")
	persisted := state.Selection{
		Version:       state.CurrentVersion,
		IncludedPaths: []string{"src/a.py", "src/removed.py", "src", "./tests/c.py"},
	}

	tree, stale, err := Build(cat, persisted, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := []string{"src", "src/removed.py"}; !reflect.DeepEqual(stale, want) {
		t.Errorf("stale = %v, want %v", stale, want)
	}
	if tree.IsIncluded("src/new.py") {
		t.Error("new file should start excluded")
	}
	if want := []string{"src/a.py", "tests/c.py"}; !reflect.DeepEqual(tree.Included(), want) {
		t.Errorf("Included() = %v, want %v", tree.Included(), want)
	}
}

func TestBuild_AutoInclude(t *testing.T) {
	cat := newCatalog("go.mod", "cmd/main.go", "docs/x.md")

	tree, _, err := Build(cat, state.Empty(), []string{"**/*.go", "go.mod"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := []string{"cmd/main.go", "go.mod"}; !reflect.DeepEqual(tree.Included(), want) {
		t.Errorf("Included() = %v, want %v", tree.Included(), want)
	}

	if _, _, err := Build(cat, state.Empty(), []string{"[bad"}); !errors.Is(err, errors.ErrPatternSyntax) {
		t.Errorf("bad auto-include err = %v, want PATTERN_SYNTAX", err)
	}
}

func TestBuild_SerializeIdempotent(t *testing.T) {
	cat := newCatalog("a/b/c.go", "a/b/d.go", "a/e.go", "f.go", "g/h.go")
	tree := buildTree(t, cat, "a/b/c.go", "f.go")

	first := tree.Serialize()
	again := buildTree(t, cat, first.IncludedPaths...)
	second := again.Serialize()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Serialize not idempotent: %v vs %v", first, second)
	}
	statesOf := func(tr *Tree) map[string]State {
		m := map[string]State{}
		_ = tr.Walk(func(n *Node) error { m[n.Path()] = n.State(); return nil })
		return m
	}
	if !reflect.DeepEqual(statesOf(tree), statesOf(again)) {
		t.Error("rebuilt tree states differ")
	}
}

func TestSerialize_FilesOnlySorted(t *testing.T) {
	tree := buildTree(t, newCatalog("B.md", "a/x.go", "a-b/y.go"))
	if _, err := tree.Toggle("."); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	got := tree.Serialize()
	want := []string{"B.md", "a-b/y.go", "a/x.go"}
	if !reflect.DeepEqual(got.IncludedPaths, want) {
		t.Errorf("IncludedPaths = %v, want %v", got.IncludedPaths, want)
	}
	if got.Version != state.CurrentVersion {
		t.Errorf("Version = %d", got.Version)
	}
}

func TestSummary(t *testing.T) {
	// sizes are 10, 20, 30 in catalog order
	tree := buildTree(t, newCatalog("a.go", "b.go", "c.go"), "a.go", "c.go")

	s := tree.Summary()
	if s.FileCount != 2 || s.TotalBytes != 40 || s.TotalFiles != 3 {
		t.Errorf("Summary() = %+v, want 2 files / 40 bytes / 3 total", s)
	}
}

func TestWalk_OrderAndSkip(t *testing.T) {
	tree := buildTree(t, newCatalog("b/x.go", "a.go", "b/c/y.go", "d.go"))

	var visited []string
	err := tree.Walk(func(n *Node) error {
		visited = append(visited, n.Path())
		if n.Path() == "b/c" {
			return SkipChildren
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{"", "a.go", "b", "b/c", "b/x.go", "d.go"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("visited = %v, want %v", visited, want)
	}
}

func TestEmptyCatalog(t *testing.T) {
	tree := buildTree(t, newCatalog())

	if tree.Root().State() != Excluded {
		t.Errorf("root = %v, want excluded", tree.Root().State())
	}
	if err := tree.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if len(tree.Serialize().IncludedPaths) != 0 {
		t.Error("empty tree should serialize to no paths")
	}
}

func TestVerify_DetectsCorruption(t *testing.T) {
	tree := buildTree(t, newCatalog("d/a.go", "d/b.go"), "d/a.go")
	n, _ := tree.Node("d")
	n.state = Included

	err := tree.Verify()
	if !errors.Is(err, errors.ErrInvariantViolation) {
		t.Fatalf("Verify() = %v, want INVARIANT_VIOLATION", err)
	}
	pErr, _ := errors.As(err)
	if !pErr.Fatal() {
		t.Error("invariant violation must be fatal")
	}
}

// bruteState derives a node's state from its descendant files directly.
func bruteState(tree *Tree, n *Node) State {
	if n.Kind() == File {
		return n.State()
	}
	total, included := 0, 0
	collectFiles(n, func(f *Node) {
		total++
		if f.State() == Included {
			included++
		}
	})
	switch {
	case total == 0 || included == 0:
		return Excluded
	case included == total:
		return Included
	default:
		return Partial
	}
}

func randomCatalog(rng *rand.Rand) *catalog.Catalog {
	seen := map[string]bool{}
	var paths []string
	n := 1 + rng.Intn(40)
	for len(paths) < n {
		depth := rng.Intn(4)
		parts := make([]string, 0, depth+1)
		for d := 0; d < depth; d++ {
			parts = append(parts, fmt.Sprintf("d%d", rng.Intn(3)))
		}
		ext := []string{".go", ".py", ".md"}[rng.Intn(3)]
		parts = append(parts, fmt.Sprintf("f%d%s", rng.Intn(5), ext))
		p := strings.Join(parts, "/")
		// a path cannot be both a file and a directory
		if seen[p] || conflicts(seen, p) {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return newCatalog(paths...)
}

func conflicts(seen map[string]bool, p string) bool {
	for q := range seen {
		if strings.HasPrefix(q, p+"/") || strings.HasPrefix(p, q+"/") {
			return true
		}
	}
	return false
}

func TestProperty_InvariantHoldsAfterEveryMutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	patterns := []string{"**/*.py", "*.go", "d0/**", "d1/*.md", "**/f1.*", "d2"}

	for shape := 0; shape < 200; shape++ {
		cat := randomCatalog(rng)
		tree := buildTree(t, cat)
		var nodes []string
		_ = tree.Walk(func(n *Node) error { nodes = append(nodes, n.Path()); return nil })

		for step := 0; step < 25; step++ {
			switch rng.Intn(3) {
			case 0:
				if _, err := tree.Toggle(nodes[rng.Intn(len(nodes))]); err != nil {
					t.Fatalf("Toggle() error = %v", err)
				}
			case 1:
				action := Include
				if rng.Intn(2) == 0 {
					action = Exclude
				}
				if _, err := tree.ApplyPattern(patterns[rng.Intn(len(patterns))], action); err != nil {
					t.Fatalf("ApplyPattern() error = %v", err)
				}
			case 2:
				var subset []string
				for _, f := range cat.Files() {
					if rng.Intn(2) == 0 {
						subset = append(subset, f)
					}
				}
				tree.SetIncluded(subset)
			}

			if err := tree.Verify(); err != nil {
				t.Fatalf("shape %d step %d: %v", shape, step, err)
			}
			_ = tree.Walk(func(n *Node) error {
				if got, want := n.State(), bruteState(tree, n); got != want {
					t.Fatalf("shape %d step %d: %q = %v, want %v", shape, step, n.Path(), got, want)
				}
				return nil
			})

			// Serialize -> Build reproduces the same selection.
			rebuilt := buildTree(t, cat, tree.Serialize().IncludedPaths...)
			if !reflect.DeepEqual(rebuilt.Included(), tree.Included()) {
				t.Fatalf("shape %d step %d: rebuild mismatch", shape, step)
			}
		}
	}
}
