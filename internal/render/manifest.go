package render

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// Manifest records what a dump contained so a later dump can include only
// what changed.
type Manifest struct {
	Timestamp   time.Time      `json:"timestamp"`
	ProjectPath string         `json:"project_path"`
	ProjectType string         `json:"project_type"`
	OutputFile  string         `json:"output_file"`
	Model       string         `json:"model,omitempty"`
	Statistics  ManifestStats  `json:"statistics"`
	Files       []ManifestFile `json:"files"`
}

// ManifestStats summarizes a dump.
type ManifestStats struct {
	SelectedFiles int   `json:"selected_files"`
	TotalSize     int64 `json:"total_size"`
	Tokens        int   `json:"tokens"`
}

// ManifestFile is one dumped file.
type ManifestFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Hash   string `json:"hash"`
	Tokens int    `json:"tokens,omitempty"`
}

// Hash returns the short content hash stored in manifests.
func Hash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:8]
}

// ManifestPath derives the manifest location from the output file:
// out.txt -> out.manifest.json.
func ManifestPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".manifest.json"
}

// NewManifest describes b as written to output.
func NewManifest(b Bundle, output string) Manifest {
	projectType := b.ProjectType
	if projectType == "" {
		projectType = "unknown"
	}
	m := Manifest{
		Timestamp:   b.GeneratedAt,
		ProjectPath: b.ProjectPath,
		ProjectType: projectType,
		OutputFile:  output,
		Model:       b.Model,
		Statistics: ManifestStats{
			SelectedFiles: len(b.Files),
			TotalSize:     b.TotalSize(),
			Tokens:        b.Tokens,
		},
		Files: make([]ManifestFile, 0, len(b.Files)),
	}
	for _, f := range b.Files {
		hash := f.Hash
		if hash == "" {
			hash = Hash(f.Content)
		}
		m.Files = append(m.Files, ManifestFile{Path: f.Path, Size: f.Size, Hash: hash, Tokens: f.Tokens})
	}
	return m
}

// Encode returns the manifest as indented JSON.
func (m Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return append(data, '\n'), nil
}

// LoadManifest reads a manifest written by a previous dump.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, errors.NewNotFound(path)
		}
		return Manifest{}, errors.NewIO(path, err)
	}
	return DecodeManifest(path, data)
}

// DecodeManifest parses manifest JSON read from path.
func DecodeManifest(path string, data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, errors.NewIO(path, err)
	}
	return m, nil
}

// Changed keeps the files that are new since m or whose hash differs.
func (m Manifest) Changed(files []File) []File {
	prev := make(map[string]string, len(m.Files))
	for _, f := range m.Files {
		prev[f.Path] = f.Hash
	}
	var out []File
	for _, f := range files {
		hash := f.Hash
		if hash == "" {
			hash = Hash(f.Content)
		}
		if old, ok := prev[f.Path]; !ok || old != hash {
			out = append(out, f)
		}
	}
	return out
}
