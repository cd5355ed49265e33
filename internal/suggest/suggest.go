// Package suggest proposes files related to the current selection: files
// the selection imports or includes, and test companions of selected files.
package suggest

import (
	"path"
	"sort"
	"strings"

	"github.com/hpungsan/ctxpack/internal/catalog"
)

// Selection is the read side of the selection tree used by Suggest.
type Selection interface {
	Included() []string
	IsIncluded(path string) bool
}

// Reader returns a catalogued file's content.
type Reader func(path string) ([]byte, error)

// Options configures Suggest.
type Options struct {
	// Limit caps the number of suggestions; 0 means no cap.
	Limit int
}

// Suggestion is a non-included file referenced by included files.
type Suggestion struct {
	Path       string   `json:"path"`
	Language   string   `json:"language,omitempty"`
	References int      `json:"references"`
	Referrers  []string `json:"referrers"`
	Reasons    []string `json:"reasons"`
}

// Suggest scans every included file for references and returns the
// referenced files that are not yet included, most-referenced first. Files
// that cannot be read are skipped. The result is empty, never nil, when
// nothing is found.
func Suggest(sel Selection, cat *catalog.Catalog, read Reader, opts Options) []Suggestion {
	r := newResolver(cat, read)
	found := make(map[string]*Suggestion)

	add := func(target, referrer, reason string) {
		if target == referrer || sel.IsIncluded(target) {
			return
		}
		s, ok := found[target]
		if !ok {
			e, _ := cat.Lookup(target)
			s = &Suggestion{Path: target, Language: e.Language}
			found[target] = s
		}
		for _, existing := range s.Referrers {
			if existing == referrer {
				return
			}
		}
		s.Referrers = append(s.Referrers, referrer)
		s.Reasons = append(s.Reasons, reason)
		s.References++
	}

	for _, p := range sel.Included() {
		entry, ok := cat.Lookup(p)
		if !ok {
			continue
		}

		for _, c := range r.companions(entry) {
			add(c, p, "test companion of "+p)
		}

		if entry.Language == "" {
			continue
		}
		data, err := read(p)
		if err != nil {
			continue
		}
		for _, ref := range extract(entry.Language, string(data)) {
			for _, target := range r.resolve(p, ref) {
				add(target, p, "referenced by "+p)
			}
		}
	}

	out := make([]Suggestion, 0, len(found))
	for _, s := range found {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].References != out[j].References {
			return out[i].References > out[j].References
		}
		return out[i].Path < out[j].Path
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// resolver maps reference specs to catalogued paths.
type resolver struct {
	cat      *catalog.Catalog
	byBase   map[string][]string
	goModule string
}

func newResolver(cat *catalog.Catalog, read Reader) *resolver {
	r := &resolver{cat: cat, byBase: make(map[string][]string)}
	for _, p := range cat.Files() {
		base := path.Base(p)
		r.byBase[base] = append(r.byBase[base], p)
	}
	if _, ok := cat.Lookup("go.mod"); ok {
		if data, err := read("go.mod"); err == nil {
			r.goModule = modulePath(string(data))
		}
	}
	return r
}

func modulePath(gomod string) string {
	for _, line := range strings.Split(gomod, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}

func (r *resolver) exists(p string) bool {
	_, ok := r.cat.Lookup(p)
	return ok
}

// first returns the first candidate present in the catalog.
func (r *resolver) first(candidates ...string) []string {
	for _, c := range candidates {
		c = path.Clean(c)
		if strings.HasPrefix(c, "../") || c == ".." {
			continue
		}
		if r.exists(c) {
			return []string{c}
		}
	}
	return nil
}

// bySuffix finds files whose path ends with suffix on a segment boundary.
// The shortest match wins so results are deterministic.
func (r *resolver) bySuffix(suffix string) []string {
	suffix = strings.TrimPrefix(suffix, "/")
	var best string
	for _, p := range r.byBase[path.Base(suffix)] {
		if p != suffix && !strings.HasSuffix(p, "/"+suffix) {
			continue
		}
		if best == "" || len(p) < len(best) || (len(p) == len(best) && p < best) {
			best = p
		}
	}
	if best == "" {
		return nil
	}
	return []string{best}
}

// resolveAny tries exact candidates first, then a suffix match on each.
func (r *resolver) resolveAny(candidates ...string) []string {
	if got := r.first(candidates...); got != nil {
		return got
	}
	for _, c := range candidates {
		if got := r.bySuffix(path.Clean(c)); got != nil {
			return got
		}
	}
	return nil
}

func (r *resolver) resolve(from string, ref ref) []string {
	dir := path.Dir(from)
	switch ref.kind {
	case refGo:
		return r.resolveGo(ref.spec)
	case refPython:
		return r.resolvePython(dir, ref.spec)
	case refJS:
		return r.resolveJS(dir, ref.spec)
	case refRustMod:
		return r.first(path.Join(dir, ref.spec+".rs"), path.Join(dir, ref.spec, "mod.rs"))
	case refRustUse:
		return r.resolveRustUse(ref.spec)
	case refInclude:
		return r.resolveAny(path.Join(dir, ref.spec), ref.spec, path.Join("include", ref.spec))
	case refJVM:
		return r.resolveJVM(ref.spec)
	case refRubyRelative:
		return r.first(withExt(path.Join(dir, ref.spec), ".rb"))
	case refRuby:
		return r.resolveAny(path.Join("lib", withExt(ref.spec, ".rb")), withExt(ref.spec, ".rb"))
	case refPHPFile:
		return r.resolveAny(path.Join(dir, ref.spec), ref.spec)
	case refPHPUse:
		return r.resolvePHPUse(ref.spec)
	}
	return nil
}

func withExt(p, ext string) string {
	if strings.HasSuffix(p, ext) {
		return p
	}
	return p + ext
}

// resolvePHPUse drops leading namespace segments until a file matches, so
// App\Models\User finds app/Models/User.php.
func (r *resolver) resolvePHPUse(spec string) []string {
	parts := strings.Split(strings.Trim(spec, `\`), `\`)
	for i := range parts {
		if got := r.bySuffix(strings.Join(parts[i:], "/") + ".php"); got != nil {
			return got
		}
	}
	return nil
}

// resolveGo maps an import path to the non-test files of its package.
func (r *resolver) resolveGo(importPath string) []string {
	var dir string
	switch {
	case r.goModule != "" && importPath == r.goModule:
		dir = "."
	case r.goModule != "" && strings.HasPrefix(importPath, r.goModule+"/"):
		dir = strings.TrimPrefix(importPath, r.goModule+"/")
	default:
		// longest catalogued directory that is a suffix of the import path
		for _, d := range r.cat.Dirs() {
			if (importPath == d || strings.HasSuffix(importPath, "/"+d)) && len(d) > len(dir) {
				dir = d
			}
		}
	}
	if dir == "" {
		return nil
	}

	var files []string
	if dir == "." {
		for _, p := range r.cat.Files() {
			if !strings.Contains(p, "/") && isGoSource(p) {
				files = append(files, p)
			}
		}
		return files
	}
	for _, p := range r.cat.Under(dir) {
		if path.Dir(p) == dir && isGoSource(p) {
			files = append(files, p)
		}
	}
	return files
}

func isGoSource(p string) bool {
	return strings.HasSuffix(p, ".go") && !strings.HasSuffix(p, "_test.go")
}

func (r *resolver) resolvePython(dir, spec string) []string {
	var base string
	rest := spec
	if strings.HasPrefix(spec, ".") {
		base = dir
		rest = strings.TrimPrefix(rest, ".")
		for strings.HasPrefix(rest, ".") {
			base = path.Dir(base)
			rest = rest[1:]
		}
	}
	if rest == "" {
		return r.first(path.Join(base, "__init__.py"))
	}
	mod := strings.ReplaceAll(rest, ".", "/")
	if base != "" {
		return r.first(path.Join(base, mod+".py"), path.Join(base, mod, "__init__.py"))
	}
	return r.resolveAny(
		path.Join(dir, mod+".py"),
		mod+".py",
		path.Join("src", mod+".py"),
		path.Join(mod, "__init__.py"),
		path.Join("src", mod, "__init__.py"),
	)
}

var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".vue", ".json"}

func (r *resolver) resolveJS(dir, spec string) []string {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") && !strings.HasPrefix(spec, "/") {
		return nil
	}
	target := path.Join(dir, spec)
	if strings.HasPrefix(spec, "/") {
		target = strings.TrimPrefix(spec, "/")
	}
	candidates := []string{target}
	for _, ext := range jsExtensions {
		candidates = append(candidates, target+ext)
	}
	for _, ext := range jsExtensions {
		candidates = append(candidates, path.Join(target, "index"+ext))
	}
	return r.first(candidates...)
}

func (r *resolver) resolveRustUse(spec string) []string {
	parts := strings.Split(spec, "::")
	// try the longest module path first: crate::a::b::Item -> src/a/b.rs
	for n := len(parts); n > 0; n-- {
		mod := strings.Join(parts[:n], "/")
		if got := r.first(path.Join("src", mod+".rs"), path.Join("src", mod, "mod.rs")); got != nil {
			return got
		}
	}
	return nil
}

func (r *resolver) resolveJVM(spec string) []string {
	p := strings.ReplaceAll(spec, ".", "/")
	for _, ext := range []string{".java", ".kt", ".scala"} {
		if got := r.bySuffix(p + ext); got != nil {
			return got
		}
	}
	return nil
}

// companions returns test files for sources and sources for tests, plus C
// header/source pairs.
func (r *resolver) companions(e catalog.Entry) []string {
	dir := path.Dir(e.Path)
	base := path.Base(e.Path)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	join := func(name string) string { return path.Join(dir, name) }

	var out []string
	addExact := func(cands ...string) {
		out = append(out, r.first(cands...)...)
	}
	addByName := func(names ...string) {
		for _, n := range names {
			if got := r.first(join(n)); got != nil {
				out = append(out, got...)
				continue
			}
			out = append(out, r.byName(n, dir)...)
		}
	}

	switch ext {
	case ".go":
		if s, ok := strings.CutSuffix(stem, "_test"); ok {
			addExact(join(s + ".go"))
		} else {
			addExact(join(stem + "_test.go"))
		}
	case ".py":
		if s, ok := strings.CutPrefix(stem, "test_"); ok {
			addByName(s + ".py")
		} else if s, ok := strings.CutSuffix(stem, "_test"); ok {
			addByName(s + ".py")
		} else {
			addByName("test_"+stem+".py", stem+"_test.py")
		}
	case ".js", ".jsx", ".ts", ".tsx", ".mjs":
		if s, ok := cutAnySuffix(stem, ".test", ".spec"); ok {
			addByName(s + ext)
		} else {
			addByName(stem+".test"+ext, stem+".spec"+ext)
		}
	case ".rb":
		if s, ok := cutAnySuffix(stem, "_spec", "_test"); ok {
			addByName(s + ".rb")
		} else {
			addByName(stem+"_spec.rb", stem+"_test.rb")
		}
	case ".java", ".kt", ".scala":
		if s, ok := strings.CutSuffix(stem, "Test"); ok && s != "" {
			addByName(s + ext)
		} else {
			addByName(stem + "Test" + ext)
		}
	case ".c", ".cc", ".cpp", ".cxx":
		addExact(join(stem+".h"), join(stem+".hpp"))
	case ".h", ".hpp":
		addExact(join(stem+".c"), join(stem+".cpp"), join(stem+".cc"))
	}
	return out
}

// byName finds a file by base name anywhere in the catalog, preferring the
// one sharing the longest directory prefix with near.
func (r *resolver) byName(name, near string) []string {
	matches := r.byBase[name]
	if len(matches) == 0 {
		return nil
	}
	best, bestScore := "", -1
	for _, m := range matches {
		score := commonPrefix(path.Dir(m), near)
		if score > bestScore || (score == bestScore && m < best) {
			best, bestScore = m, score
		}
	}
	return []string{best}
}

func commonPrefix(a, b string) int {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}

func cutAnySuffix(s string, suffixes ...string) (string, bool) {
	for _, suf := range suffixes {
		if before, ok := strings.CutSuffix(s, suf); ok {
			return before, true
		}
	}
	return s, false
}
