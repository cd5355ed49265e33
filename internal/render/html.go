package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("page").Funcs(template.FuncMap{
	"formatBytes": formatBytes,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 72rem; margin: 2rem auto; padding: 0 1rem; }
pre { background: #f6f8fa; padding: 0.75rem; overflow-x: auto; }
code { font-family: ui-monospace, monospace; }
.meta { color: #57606a; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{.Files}} files, {{formatBytes .Size}}{{if .Model}}, ~{{.Tokens}} tokens ({{.Model}}){{end}}</p>
{{.Body}}
</body>
</html>
`))

type pageData struct {
	Title  string
	Files  int
	Size   int64
	Model  string
	Tokens int
	Body   template.HTML
}

// HTML renders the markdown bundle to a standalone HTML page.
func HTML(w io.Writer, b Bundle) error {
	var md bytes.Buffer
	if err := Markdown(&md, b); err != nil {
		return err
	}
	return page.Execute(w, pageData{
		Title:  b.ProjectPath,
		Files:  len(b.Files),
		Size:   b.TotalSize(),
		Model:  b.Model,
		Tokens: b.Tokens,
		Body:   renderMarkdown(md.String()),
	})
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return template.HTML(buf.String())
}

// formatBytes formats a byte count as B, KB or MB.
func formatBytes(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d B", n)
	case n < unit*unit:
		return fmt.Sprintf("%.1f KB", float64(n)/unit)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(unit*unit))
	}
}
