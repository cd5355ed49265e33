package ops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hpungsan/ctxpack/internal/catalog"
	"github.com/hpungsan/ctxpack/internal/config"
	"github.com/hpungsan/ctxpack/internal/errors"
	"github.com/hpungsan/ctxpack/internal/render"
)

// TemplateFile is the example template written by Init, relative to the
// config directory.
const TemplateFile = "bundle.tmpl"

// InitInput contains parameters for the Init operation.
type InitInput struct {
	Root        string
	ProjectType string // default: detected
	Force       bool   // overwrite an existing config
}

// InitOutput contains the result of the Init operation.
type InitOutput struct {
	ConfigPath   string         `json:"config_path"`
	TemplatePath string         `json:"template_path,omitempty"`
	ProjectType  string         `json:"project_type"`
	Config       *config.Config `json:"config"`
}

// Init writes a repo config with defaults for the detected project type,
// plus an example bundle template that reproduces the markdown format.
func Init(input InitInput) (*InitOutput, error) {
	root, err := filepath.Abs(input.Root)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid root: %v", err))
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errors.NewInvalidRequest("project root is not a directory: " + root)
	}

	projectType := input.ProjectType
	if projectType == "" {
		projectType = catalog.DetectProjectType(root)
	}

	configPath, err := ValidatePath(filepath.Join(config.DirName, "config.json"), root, PathCheckWrite, false)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(configPath); err == nil && !input.Force {
		return nil, errors.NewInvalidRequest(configPath + " already exists (use --force to overwrite)")
	}

	cfg := config.InitConfig(projectType)
	if err := config.Save(configPath, cfg); err != nil {
		return nil, errors.NewIO(configPath, err)
	}
	out := &InitOutput{ConfigPath: configPath, ProjectType: projectType, Config: cfg}

	tmplPath, err := ValidatePath(filepath.Join(config.DirName, TemplateFile), root, PathCheckWrite, false)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(tmplPath); os.IsNotExist(err) {
		if err := writeFileAtomic(tmplPath, 0o644, func(w io.Writer) error {
			_, err := io.WriteString(w, render.DefaultTemplate)
			return err
		}); err != nil {
			return nil, err
		}
		out.TemplatePath = tmplPath
	}
	return out, nil
}
