// Package render turns an ordered set of selected files into a single
// document: the markdown bundle, JSON, HTML, or a user template.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// Format names an output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// Formats lists the built-in formats.
var Formats = []Format{FormatMarkdown, FormatJSON, FormatHTML}

// ParseFormat validates a format name. Empty means markdown; "md" and "txt"
// are accepted as markdown aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md", "txt", "text":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "html":
		return FormatHTML, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want markdown, json or html)", s))
}

// File is one selected file in a bundle.
type File struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Size     int64  `json:"size"`
	Tokens   int    `json:"tokens,omitempty"`
	Hash     string `json:"hash"`
	Content  string `json:"content"`
}

// Extension returns the file extension without the dot, used as the code
// fence tag.
func (f File) Extension() string {
	return strings.TrimPrefix(path.Ext(f.Path), ".")
}

// Bundle is everything a renderer needs.
type Bundle struct {
	ProjectPath string    `json:"project_path"`
	ProjectType string    `json:"project_type,omitempty"`
	Model       string    `json:"model,omitempty"`
	Tokens      int       `json:"tokens"`
	GeneratedAt time.Time `json:"generated_at"`
	Files       []File    `json:"files"`
}

// Paths returns the bundle's file paths in order.
func (b Bundle) Paths() []string {
	out := make([]string, len(b.Files))
	for i, f := range b.Files {
		out[i] = f.Path
	}
	return out
}

// TotalSize sums the size of every file.
func (b Bundle) TotalSize() int64 {
	var n int64
	for _, f := range b.Files {
		n += f.Size
	}
	return n
}

// Render writes b to w in the given format.
func Render(w io.Writer, format Format, b Bundle) error {
	switch format {
	case FormatMarkdown, "":
		return Markdown(w, b)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	case FormatHTML:
		return HTML(w, b)
	}
	return errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", format))
}

// Markdown writes the bundle as a project header, a source tree of the
// selected files, and one fenced block per file.
func Markdown(w io.Writer, b Bundle) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project Path: %s\n\n", b.ProjectPath)
	sb.WriteString("Source Tree:\n```\n")
	sb.WriteString(SourceTree(b.Paths()))
	sb.WriteString("```\n\n")
	for _, f := range b.Files {
		fmt.Fprintf(&sb, "`%s`:\n", f.Path)
		sb.WriteString(CodeBlock(f))
		sb.WriteString("\n\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// CodeBlock wraps a file's content in a fence tagged with its extension.
// A leading byte-order mark is dropped. The fence grows when the content
// itself contains backtick runs.
func CodeBlock(f File) string {
	content := strings.TrimPrefix(f.Content, "\ufeff")
	content = strings.TrimSuffix(content, "\n")
	fence := "```"
	for strings.Contains(content, fence) {
		fence += "`"
	}
	return fence + f.Extension() + "\n" + content + "\n" + fence
}
