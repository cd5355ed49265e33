// Package state persists the selection between runs.
package state

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 1

// Selection is the on-disk form of the selection: the minimal sorted list
// of included files.
type Selection struct {
	Version       int      `json:"version"`
	IncludedPaths []string `json:"included_paths"`

	// KnownPaths lists every catalogued file at save time. A file missing
	// from it is new on the next load. Nil means no record was kept.
	KnownPaths []string `json:"known_paths,omitempty"`

	// Outputs lists bundles and manifests written inside the project, so
	// later scans leave them out of the catalog.
	Outputs []string `json:"outputs,omitempty"`
}

// Empty returns a current-version selection with nothing included.
func Empty() Selection {
	return Selection{Version: CurrentVersion, IncludedPaths: []string{}}
}

// Normalize sorts and deduplicates every path list. IncludedPaths is never
// nil afterwards; the other lists stay nil when they were.
func (s Selection) Normalize() Selection {
	out := Selection{Version: s.Version, IncludedPaths: sortedSet(s.IncludedPaths)}
	if s.KnownPaths != nil {
		out.KnownPaths = sortedSet(s.KnownPaths)
	}
	if s.Outputs != nil {
		out.Outputs = sortedSet(s.Outputs)
	}
	return out
}

// Known returns KnownPaths as a set, or nil when no record was kept.
func (s Selection) Known() map[string]bool {
	if s.KnownPaths == nil {
		return nil
	}
	known := make(map[string]bool, len(s.KnownPaths))
	for _, p := range s.KnownPaths {
		known[p] = true
	}
	return known
}

func sortedSet(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Load reads the selection at path. A missing file yields an empty
// selection and no error. A file written by another schema version, or in
// the legacy format without a version field, yields an empty selection and
// a PERSISTENCE_VERSION_MISMATCH warning, and so does a file that is not
// valid JSON. Only a file that exists but cannot be read is an IO_ERROR.
func Load(path string) (Selection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Empty(), nil
		}
		return Empty(), errors.NewIO(path, err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Empty(), errors.NewCorruptSelection(path, err)
	}

	rawVersion, ok := probe["version"]
	if !ok {
		return Empty(), errors.NewVersionMismatch(path, 0, CurrentVersion)
	}
	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil || version != CurrentVersion {
		return Empty(), errors.NewVersionMismatch(path, version, CurrentVersion)
	}

	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return Empty(), errors.NewCorruptSelection(path, fmt.Errorf("decode selection: %w", err))
	}
	if sel.IncludedPaths == nil {
		sel.IncludedPaths = []string{}
	}
	return sel.Normalize(), nil
}

// Save writes sel to path atomically: a temp file in the same directory is
// written, fsynced and renamed over the target.
func Save(path string, sel Selection) error {
	sel = sel.Normalize()
	sel.Version = CurrentVersion

	data, err := json.MarshalIndent(sel, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIO(dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewIO(dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewIO(tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.NewIO(tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIO(tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.NewIO(tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.NewIO(path, err)
	}
	return nil
}
