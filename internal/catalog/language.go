package catalog

import (
	"bytes"
	"path"
	"strings"
)

var extLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".pyi":   "python",
	".pyx":   "python",
	".pxd":   "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".mts":   "typescript",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".hh":    "cpp",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".scala": "scala",
	".rb":    "ruby",
	".rake":  "ruby",
	".php":   "php",
	".swift": "swift",
	".cs":    "csharp",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".sql":   "sql",
	".html":  "html",
	".htm":   "html",
	".css":   "css",
	".scss":  "scss",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".md":    "markdown",
	".proto": "protobuf",
	".lua":   "lua",
	".pl":    "perl",
	".r":     "r",
	".dart":  "dart",
	".ex":    "elixir",
	".exs":   "elixir",
	".hs":    "haskell",
	".vue":   "vue",
}

var fileLanguages = map[string]string{
	"Makefile":       "makefile",
	"GNUmakefile":    "makefile",
	"Dockerfile":     "dockerfile",
	"Containerfile":  "dockerfile",
	"Rakefile":       "ruby",
	"Gemfile":        "ruby",
	"Vagrantfile":    "ruby",
	"CMakeLists.txt": "cmake",
	"Jenkinsfile":    "groovy",
	"go.mod":         "go-module",
	"go.sum":         "go-sum",
	"BUILD":          "starlark",
	"WORKSPACE":      "starlark",
}

var shebangLanguages = map[string]string{
	"python":  "python",
	"python3": "python",
	"node":    "javascript",
	"deno":    "typescript",
	"bash":    "shell",
	"sh":      "shell",
	"zsh":     "shell",
	"ruby":    "ruby",
	"perl":    "perl",
	"php":     "php",
}

// DetectLanguage infers a language from the file name, extension and, for
// extensionless scripts, the shebang line in head. Returns "" if unknown.
func DetectLanguage(p string, head []byte) string {
	base := path.Base(p)
	if lang, ok := fileLanguages[base]; ok {
		return lang
	}
	if strings.HasPrefix(base, "Dockerfile.") {
		return "dockerfile"
	}
	if lang, ok := extLanguages[strings.ToLower(path.Ext(base))]; ok {
		return lang
	}
	return shebangLanguage(head)
}

func shebangLanguage(head []byte) string {
	if !bytes.HasPrefix(head, []byte("#!")) {
		return ""
	}
	line := head[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return ""
	}
	interp := path.Base(fields[0])
	if interp == "env" {
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				interp = f
				break
			}
		}
	}
	if lang, ok := shebangLanguages[interp]; ok {
		return lang
	}
	// python3.12, ruby2.7 and the like
	trimmed := strings.TrimRight(interp, "0123456789.")
	return shebangLanguages[trimmed]
}
