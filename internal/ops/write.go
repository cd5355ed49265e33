package ops

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// maxTemplateBytes bounds templates and manifests read from disk.
const maxTemplateBytes = 4 << 20

// writeFileAtomic streams write into a temp file next to path, then renames
// it into place so a failed write preserves the existing file. path must
// already be validated.
func writeFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIO(dir, err)
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewIO(tempPath, err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	bw := bufio.NewWriter(file)
	if err := write(bw); err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewIO(path, err)
	}
	if err := bw.Flush(); err != nil {
		return errors.NewIO(tempPath, err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewIO(tempPath, err)
	}

	// Close before the rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewIO(tempPath, err)
	}
	file = nil

	// os.Rename would follow a symlink planted since validation.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("output path is a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return errors.NewIO(path, fmt.Errorf("failed to finalize write: %w", err))
	}

	success = true
	return nil
}

// readFileNoFollow reads a validated path without following a final
// symlink, refusing files larger than limit.
func readFileNoFollow(path string, limit int64) ([]byte, error) {
	f, err := openFileNoFollowRead(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewIO(path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, errors.NewIO(path, err)
	}
	if int64(len(data)) > limit {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("%s exceeds %d bytes", path, limit))
	}
	return data, nil
}
