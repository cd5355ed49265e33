// Package catalog enumerates the files of a project that are eligible for
// selection. It is rebuilt on every run and never mutated afterwards.
package catalog

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/logging"
)

// IgnoreFunc reports whether a root-relative, slash-separated path is
// ignored. Directories are passed with a trailing slash.
type IgnoreFunc func(path string) bool

// SkipReason names why a path was left out of the catalog.
type SkipReason string

const (
	SkipIgnored  SkipReason = "ignored"
	SkipBinary   SkipReason = "binary"
	SkipTooLarge SkipReason = "too_large"
	SkipSpecial  SkipReason = "special"
)

// Entry is one catalogued file.
type Entry struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Language  string    `json:"language,omitempty"`
	IsBinary  bool      `json:"is_binary,omitempty"`
	IsIgnored bool      `json:"is_ignored,omitempty"`
	ModTime   time.Time `json:"mod_time"`
}

// Signature identifies a version of a file's content without reading it.
type Signature struct {
	Size    int64
	ModTime int64 // unix nanoseconds
}

// Signature returns the entry's content signature.
func (e Entry) Signature() Signature {
	return Signature{Size: e.Size, ModTime: e.ModTime.UnixNano()}
}

// Catalog is the immutable result of a scan.
type Catalog struct {
	Root    string
	Entries []Entry

	// Skipped counts excluded paths per reason. An ignored directory counts once.
	Skipped map[SkipReason]int

	// Excluded lists what was skipped, with IsIgnored/IsBinary set.
	// Ignored directories appear once with a trailing slash.
	Excluded []Entry

	// Errors holds one IO_ERROR per unreadable path.
	Errors []*errors.PackError

	index map[string]int
	dirs  []string
}

// Scan walks root and catalogs every eligible file. maxFileSize <= 0 means
// no size limit. Only a missing or unreadable root fails the scan.
func Scan(root string, isIgnored IgnoreFunc, maxFileSize int64, logger *zap.Logger) (*Catalog, error) {
	logger = logging.OrNop(logger)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewIO(root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.NewIO(root, err)
	}
	if !info.IsDir() {
		return nil, errors.NewInvalidRequest("project root is not a directory: " + root)
	}
	if isIgnored == nil {
		isIgnored = func(string) bool { return false }
	}

	cat := &Catalog{
		Root:    absRoot,
		Skipped: make(map[SkipReason]int),
	}
	logger.Debug("Starting catalog scan", zap.String("root", absRoot), zap.Int64("maxFileSize", maxFileSize))

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if p == absRoot {
			return walkErr
		}
		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			logger.Warn("Error accessing path during scan", zap.String("path", rel), zap.Error(walkErr))
			cat.Errors = append(cat.Errors, errors.NewIO(rel, walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if isIgnored(rel + "/") {
				logger.Debug("Skipping ignored directory", zap.String("dir", rel))
				cat.skip(Entry{Path: rel + "/", IsIgnored: true}, SkipIgnored)
				return filepath.SkipDir
			}
			return nil
		}

		if isIgnored(rel) {
			cat.skip(Entry{Path: rel, IsIgnored: true}, SkipIgnored)
			return nil
		}
		if !d.Type().IsRegular() {
			cat.skip(Entry{Path: rel}, SkipSpecial)
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			cat.Errors = append(cat.Errors, errors.NewIO(rel, err))
			return nil
		}
		entry := Entry{Path: rel, Size: fi.Size(), ModTime: fi.ModTime()}

		if hasBinaryExtension(rel) {
			entry.IsBinary = true
			cat.skip(entry, SkipBinary)
			return nil
		}
		if maxFileSize > 0 && fi.Size() > maxFileSize {
			logger.Debug("Skipping large file", zap.String("path", rel), zap.Int64("size", fi.Size()))
			cat.skip(entry, SkipTooLarge)
			return nil
		}

		binary, head, err := sniff(p)
		if err != nil {
			logger.Warn("Failed to read file head", zap.String("path", rel), zap.Error(err))
			cat.Errors = append(cat.Errors, errors.NewIO(rel, err))
			return nil
		}
		if binary {
			entry.IsBinary = true
			cat.skip(entry, SkipBinary)
			return nil
		}

		entry.Language = DetectLanguage(rel, head)
		cat.Entries = append(cat.Entries, entry)
		return nil
	})
	if err != nil {
		return nil, errors.NewIO(root, err)
	}

	cat.finish()
	logger.Debug("Catalog scan complete",
		zap.Int("files", len(cat.Entries)),
		zap.Int("ignored", cat.Skipped[SkipIgnored]),
		zap.Int("binary", cat.Skipped[SkipBinary]),
		zap.Int("tooLarge", cat.Skipped[SkipTooLarge]),
		zap.Int("errors", len(cat.Errors)),
	)
	return cat, nil
}

// New builds a catalog from entries already in hand. Used by callers that
// construct catalogs without touching the filesystem.
func New(root string, entries []Entry) *Catalog {
	cat := &Catalog{
		Root:    root,
		Entries: append([]Entry(nil), entries...),
		Skipped: make(map[SkipReason]int),
	}
	cat.finish()
	return cat
}

func (c *Catalog) skip(e Entry, reason SkipReason) {
	c.Skipped[reason]++
	c.Excluded = append(c.Excluded, e)
}

// finish sorts entries by full path and derives the directory set.
func (c *Catalog) finish() {
	sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].Path < c.Entries[j].Path })
	sort.Slice(c.Excluded, func(i, j int) bool { return c.Excluded[i].Path < c.Excluded[j].Path })

	c.index = make(map[string]int, len(c.Entries))
	seen := make(map[string]bool)
	for i, e := range c.Entries {
		c.index[e.Path] = i
		for dir := path.Dir(e.Path); dir != "." && !seen[dir]; dir = path.Dir(dir) {
			seen[dir] = true
			c.dirs = append(c.dirs, dir)
		}
	}
	sort.Strings(c.dirs)
}

// Lookup returns the entry for a file path.
func (c *Catalog) Lookup(p string) (Entry, bool) {
	i, ok := c.index[p]
	if !ok {
		return Entry{}, false
	}
	return c.Entries[i], true
}

// Files returns every catalogued file path in order.
func (c *Catalog) Files() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Path
	}
	return out
}

// Dirs returns every directory that contains at least one catalogued file.
// Empty directories never appear.
func (c *Catalog) Dirs() []string {
	return c.dirs
}

// Len returns the number of catalogued files.
func (c *Catalog) Len() int {
	return len(c.Entries)
}

// TotalSize sums the size of every catalogued file.
func (c *Catalog) TotalSize() int64 {
	var n int64
	for _, e := range c.Entries {
		n += e.Size
	}
	return n
}

// Signature returns the current content signature for a file.
func (c *Catalog) Signature(p string) (Signature, bool) {
	e, ok := c.Lookup(p)
	if !ok {
		return Signature{}, false
	}
	return e.Signature(), true
}

// Read returns a catalogued file's content.
func (c *Catalog) Read(p string) ([]byte, error) {
	if _, ok := c.index[p]; !ok {
		return nil, errors.NewNotFound(p)
	}
	data, err := os.ReadFile(filepath.Join(c.Root, filepath.FromSlash(p)))
	if err != nil {
		return nil, errors.NewIO(p, err)
	}
	return data, nil
}

// Under returns the catalogued files at or below dir, in order. An empty
// dir means the whole catalog.
func (c *Catalog) Under(dir string) []string {
	if dir == "" || dir == "." {
		return c.Files()
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	i := sort.Search(len(c.Entries), func(i int) bool { return c.Entries[i].Path >= prefix })
	var out []string
	for ; i < len(c.Entries) && strings.HasPrefix(c.Entries[i].Path, prefix); i++ {
		out = append(out, c.Entries[i].Path)
	}
	return out
}
