package render

import (
	"io"
	"strings"
	"text/template"

	"github.com/hpungsan/ctxpack/internal/errors"
)

// DefaultTemplate reproduces the markdown bundle. Custom templates see the
// same fields.
const DefaultTemplate = "Project Path: {{.ProjectPath}}\n\n" +
	"Source Tree:\n```\n{{.SourceTree}}```\n\n" +
	"{{range .Files}}`{{.Path}}`:\n{{code .}}\n\n{{end}}"

// TemplateData is the value a custom template executes against.
type TemplateData struct {
	Bundle
	SourceTree string
}

var templateFuncs = template.FuncMap{
	"code":  CodeBlock,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  strings.Join,
}

// ParseTemplate compiles a custom output template. Syntax errors are
// reported as INVALID_REQUEST.
func ParseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		pErr := errors.NewInvalidRequest("invalid template: " + err.Error())
		pErr.Err = err
		return nil, pErr
	}
	return t, nil
}

// Template renders b through t.
func Template(w io.Writer, t *template.Template, b Bundle) error {
	return t.Execute(w, TemplateData{Bundle: b, SourceTree: SourceTree(b.Paths())})
}
