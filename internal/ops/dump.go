package ops

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/ledger"
	"github.com/hpungsan/ctxpack/internal/render"
	"github.com/hpungsan/ctxpack/internal/session"
)

// FormatTemplate selects a user text/template instead of a built-in format.
const FormatTemplate = "template"

// DumpInput contains parameters for the Dump operation.
type DumpInput struct {
	Output       string // default: config output_file
	Format       string // markdown, json, html or template; default: config format
	Template     string // template file; implies the template format
	Manifest     bool   // also write a manifest (config manifest turns this on too)
	ChangedSince string // manifest of an earlier dump; only changed files are written
	Model        string // tokenizer for counts; default: the session model
	SkipTokens   bool

	// Inline returns the rendered bundle in the output instead of writing it.
	Inline bool

	// AllowOutsideRoot permits output, template and manifest paths outside
	// the project root. Symlinks are refused regardless.
	AllowOutsideRoot bool
}

// DumpOutput contains the result of the Dump operation.
type DumpOutput struct {
	Path         string        `json:"path,omitempty"`
	ManifestPath string        `json:"manifest_path,omitempty"`
	Format       string        `json:"format"`
	Files        int           `json:"files"`
	Unchanged    int           `json:"unchanged,omitempty"`
	Size         int64         `json:"size"`
	Model        string        `json:"model,omitempty"`
	Tokens       int           `json:"tokens"`
	Usage        *ledger.Usage `json:"usage,omitempty"`
	Content      string        `json:"content,omitempty"`
	Warnings     []Warning     `json:"warnings,omitempty"`
}

// Dump renders the included files into one document. Unreadable files are
// skipped with IO_ERROR warnings; the write itself is atomic.
func Dump(ctx context.Context, s *session.Session, input DumpInput) (*DumpOutput, error) {
	formatName, format, tmpl, err := resolveFormat(s, input)
	if err != nil {
		return nil, err
	}

	full, readWarnings, err := s.Bundle(ctx, session.BundleOptions{Model: input.Model, SkipTokens: input.SkipTokens})
	if err != nil {
		return nil, err
	}

	out := &DumpOutput{Format: formatName, Warnings: toWarnings(readWarnings)}
	b := full
	if input.ChangedSince != "" {
		path, err := ValidatePath(input.ChangedSince, s.Root, PathCheckRead, input.AllowOutsideRoot)
		if err != nil {
			return nil, err
		}
		data, err := readFileNoFollow(path, maxTemplateBytes)
		if err != nil {
			return nil, err
		}
		previous, err := render.DecodeManifest(path, data)
		if err != nil {
			return nil, err
		}
		b.Files = previous.Changed(full.Files)
		b.Tokens = 0
		for _, f := range b.Files {
			b.Tokens += f.Tokens
		}
		out.Unchanged = len(full.Files) - len(b.Files)
	}

	out.Files = len(b.Files)
	out.Size = b.TotalSize()
	out.Model = b.Model
	out.Tokens = b.Tokens
	if !input.SkipTokens {
		m, err := s.Models.Lookup(b.Model)
		if err != nil {
			return nil, err
		}
		usage := ledger.Classify(b.Tokens, m.Window)
		out.Usage = &usage
	}

	write := func(w io.Writer) error {
		if tmpl != nil {
			return render.Template(w, tmpl, b)
		}
		return render.Render(w, format, b)
	}

	if input.Inline {
		var buf bytes.Buffer
		if err := write(&buf); err != nil {
			return nil, err
		}
		out.Content = buf.String()
		return out, nil
	}

	target := input.Output
	if target == "" {
		target = s.OutputPath()
	}
	target, err = ValidatePath(target, s.Root, PathCheckWrite, input.AllowOutsideRoot)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(target, 0o644, write); err != nil {
		return nil, err
	}
	out.Path = target

	if input.Manifest || s.Config.Manifest {
		// The manifest always describes the full selection so the next
		// incremental dump diffs against the current tree.
		manifestPath, err := ValidatePath(render.ManifestPath(target), s.Root, PathCheckWrite, input.AllowOutsideRoot)
		if err != nil {
			return nil, err
		}
		data, err := render.NewManifest(full, target).Encode()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := writeFileAtomic(manifestPath, 0o644, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}); err != nil {
			return nil, err
		}
		out.ManifestPath = manifestPath
	}

	s.RecordOutput(out.Path, out.ManifestPath)
	if _, err := persist(s); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveFormat picks the built-in format or loads the template. A template
// path on the input wins over any configured format.
func resolveFormat(s *session.Session, input DumpInput) (string, render.Format, *template.Template, error) {
	name := strings.ToLower(strings.TrimSpace(input.Format))
	if input.Template != "" {
		name = FormatTemplate
	}
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(s.Config.Format))
	}

	if name != FormatTemplate {
		format, err := render.ParseFormat(name)
		if err != nil {
			return "", "", nil, err
		}
		return string(format), format, nil, nil
	}

	tmplPath := input.Template
	if tmplPath == "" {
		tmplPath = s.Config.Template
	}
	if tmplPath == "" {
		return "", "", nil, errors.NewInvalidRequest("template format requires a template file")
	}
	path, err := ValidatePath(tmplPath, s.Root, PathCheckRead, input.AllowOutsideRoot)
	if err != nil {
		return "", "", nil, err
	}
	data, err := readFileNoFollow(path, maxTemplateBytes)
	if err != nil {
		return "", "", nil, err
	}
	tmpl, err := render.ParseTemplate(filepath.Base(path), string(data))
	if err != nil {
		return "", "", nil, err
	}
	return FormatTemplate, "", tmpl, nil
}
