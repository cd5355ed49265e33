package catalog

import "path/filepath"

type projectIndicator struct {
	kind  string
	files []string
}

// Checked in order; the first hit wins. typescript precedes javascript
// because both have package.json.
var projectIndicators = []projectIndicator{
	{"python", []string{"requirements.txt", "setup.py", "pyproject.toml", "Pipfile"}},
	{"typescript", []string{"tsconfig.json"}},
	{"javascript", []string{"package.json", "yarn.lock", "package-lock.json"}},
	{"rust", []string{"Cargo.toml", "Cargo.lock"}},
	{"go", []string{"go.mod", "go.sum"}},
	{"java", []string{"pom.xml", "build.gradle", "build.gradle.kts"}},
	{"cpp", []string{"CMakeLists.txt", "Makefile", "*.cpp", "*.h"}},
	{"ruby", []string{"Gemfile", "Gemfile.lock", "*.rb"}},
	{"php", []string{"composer.json", "composer.lock"}},
	{"swift", []string{"Package.swift", "*.xcodeproj"}},
	{"kotlin", []string{"*.kt"}},
	{"scala", []string{"build.sbt", "*.scala"}},
}

// DetectProjectType guesses the project's primary ecosystem from marker
// files in root. Returns "" when nothing matches.
func DetectProjectType(root string) string {
	for _, ind := range projectIndicators {
		for _, name := range ind.files {
			matches, err := filepath.Glob(filepath.Join(root, name))
			if err == nil && len(matches) > 0 {
				return ind.kind
			}
		}
	}
	return ""
}
