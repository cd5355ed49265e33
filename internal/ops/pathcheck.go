package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // templates, manifests
	PathCheckWrite                      // bundles, manifests, init files
)

// ValidatePath checks a user-supplied path and returns it as an absolute
// path. Relative paths resolve against root. It checks:
// 1. Path traversal (.. sequences)
// 2. Containment (the path must lie under root unless allowOutside is set)
// 3. Symlink safety (no directory between root and the file may be a
// symlink, and the file itself must not be one)
//
// Symlink restrictions apply even with allowOutside, because files are
// opened with O_NOFOLLOW.
func ValidatePath(path, root string, mode PathCheckMode, allowOutside bool) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return "", errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid root: %v", err))
	}
	absPath := filepath.Clean(path)
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(absRoot, absPath)
	}

	inside := isUnder(absPath, absRoot)
	if !inside && !allowOutside {
		return "", errors.NewInvalidRequest(fmt.Sprintf("path must be inside the project root %s", absRoot))
	}

	if inside {
		if err := checkIntermediateDirs(absRoot, filepath.Dir(absPath)); err != nil {
			return "", err
		}
	} else if info, err := os.Lstat(filepath.Dir(absPath)); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", errors.NewInvalidRequest("parent directory must not be a symlink")
	}

	info, err := os.Lstat(absPath)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		return "", errors.NewInvalidRequest("path must not be a symlink")
	case err == nil && info.IsDir():
		return "", errors.NewInvalidRequest("path is a directory: " + path)
	case os.IsNotExist(err) && mode == PathCheckRead:
		return "", errors.NewNotFound(path)
	}
	return absPath, nil
}

// checkIntermediateDirs rejects a symlink anywhere between root (exclusive)
// and dir (inclusive). Directories that do not exist yet are fine; they are
// created without following links.
func checkIntermediateDirs(root, dir string) error {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return nil
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("directory must not be a symlink: " + current)
		}
	}
	return nil
}

func isUnder(p, root string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// forward slashes on all platforms
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
