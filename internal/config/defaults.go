package config

// ProjectDefaults holds the include/exclude globs and size cap suggested for
// a detected project type.
type ProjectDefaults struct {
	Include       []string
	Exclude       []string
	MaxFileSizeKB int
}

var projectDefaults = map[string]ProjectDefaults{
	"python": {
		Include:       []string{"**/*.py", "**/*.pyx", "**/*.pxd", "**/*.pyi"},
		Exclude:       []string{"__pycache__/", "*.pyc", "venv/", ".venv/", "build/", "dist/", "*.egg-info/"},
		MaxFileSizeKB: 1000,
	},
	"javascript": {
		Include:       []string{"**/*.js", "**/*.jsx", "**/*.mjs", "**/*.json", "**/*.md"},
		Exclude:       []string{"node_modules/", "dist/", "build/", "coverage/", ".next/"},
		MaxFileSizeKB: 500,
	},
	"typescript": {
		Include:       []string{"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.json", "**/*.md"},
		Exclude:       []string{"node_modules/", "dist/", "build/", "coverage/", ".next/", "*.d.ts"},
		MaxFileSizeKB: 500,
	},
	"rust": {
		Include:       []string{"**/*.rs", "Cargo.toml", "**/*.md"},
		Exclude:       []string{"target/", "Cargo.lock"},
		MaxFileSizeKB: 1000,
	},
	"go": {
		Include:       []string{"**/*.go", "go.mod", "go.sum", "**/*.md"},
		Exclude:       []string{"vendor/", "bin/"},
		MaxFileSizeKB: 1000,
	},
	"java": {
		Include:       []string{"**/*.java", "**/*.xml", "**/*.gradle", "**/*.properties", "**/*.md"},
		Exclude:       []string{"target/", "build/", ".gradle/", "*.class"},
		MaxFileSizeKB: 1000,
	},
	"cpp": {
		Include:       []string{"**/*.cpp", "**/*.h", "**/*.hpp", "**/*.c", "**/*.cc", "**/CMakeLists.txt", "Makefile", "**/*.md"},
		Exclude:       []string{"build/", "cmake-build-*/", "*.o", "*.obj", "*.exe"},
		MaxFileSizeKB: 1000,
	},
	"ruby": {
		Include:       []string{"**/*.rb", "**/*.rake", "Gemfile", "Rakefile", "*.gemspec", "**/*.md"},
		Exclude:       []string{"vendor/", ".bundle/", "tmp/", "log/"},
		MaxFileSizeKB: 500,
	},
	"php": {
		Include:       []string{"**/*.php", "composer.json", "**/*.md"},
		Exclude:       []string{"vendor/", "cache/", "logs/"},
		MaxFileSizeKB: 500,
	},
}

// DefaultsFor returns smart defaults for projectType. ok is false for
// unknown or empty types.
func DefaultsFor(projectType string) (ProjectDefaults, bool) {
	d, ok := projectDefaults[projectType]
	return d, ok
}

// InitConfig builds the repo config written by `ctxpack init`.
func InitConfig(projectType string) *Config {
	cfg := &Config{
		OutputFile:    "project_code.txt",
		StateFile:     DefaultConfig().StateFile,
		MaxFileSizeKB: 1000,
		ProjectType:   projectType,
		TokenLimits:   DefaultTokenLimits(),
	}
	if d, ok := DefaultsFor(projectType); ok {
		cfg.Include = append([]string(nil), d.Include...)
		cfg.Exclude = append([]string(nil), d.Exclude...)
		cfg.MaxFileSizeKB = d.MaxFileSizeKB
	}
	return cfg
}
