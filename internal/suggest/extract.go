package suggest

import (
	"regexp"
	"strings"
)

// ref is one import or include found in a source file.
type ref struct {
	spec string
	kind refKind
}

type refKind int

const (
	refGo refKind = iota
	refPython
	refJS
	refRustMod
	refRustUse
	refInclude
	refJVM
	refRubyRelative
	refRuby
	refPHPFile
	refPHPUse
)

var (
	goImportBlock  = regexp.MustCompile(`(?s)\bimport\s*\((.*?)\)`)
	goImportSingle = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w.]+\s+)?"([^"]+)"`)
	goQuoted       = regexp.MustCompile(`"([^"]+)"`)

	pyImport = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+(?:\s*,\s*[\w.]+)*)`)
	pyFrom   = regexp.MustCompile(`(?m)^\s*from\s+(\.*[\w.]*)\s+import\s+([\w., ()*]+)`)

	jsImport  = regexp.MustCompile(`(?m)(?:import|export)\s[^'"]*?from\s*['"]([^'"]+)['"]`)
	jsBare    = regexp.MustCompile(`(?m)^\s*import\s*['"]([^'"]+)['"]`)
	jsRequire = regexp.MustCompile(`\b(?:require|import)\s*\(\s*['"]([^'"]+)['"]\s*\)`)

	rustMod = regexp.MustCompile(`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?mod\s+(\w+)\s*;`)
	rustUse = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+crate::([\w:]+)`)

	cInclude = regexp.MustCompile(`(?m)^\s*#\s*include\s*"([^"]+)"`)

	jvmImport = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+)`)

	rubyRelative = regexp.MustCompile(`(?m)^\s*require_relative\s*\(?\s*['"]([^'"]+)['"]`)
	rubyRequire  = regexp.MustCompile(`(?m)^\s*require\s*\(?\s*['"]([^'"]+)['"]`)

	phpInclude = regexp.MustCompile(`\b(?:require|include)(?:_once)?\s*\(?\s*(?:__DIR__\s*\.\s*)?['"]([^'"]+)['"]`)
	phpUse     = regexp.MustCompile(`(?m)^\s*use\s+([\w\\]+)`)
)

// extract returns the references found in content for the given language.
func extract(language, content string) []ref {
	switch language {
	case "go":
		return extractGo(content)
	case "python":
		return extractPython(content)
	case "javascript", "typescript", "vue":
		return collect(content, refJS, jsImport, jsBare, jsRequire)
	case "rust":
		return append(collect(content, refRustMod, rustMod), collect(content, refRustUse, rustUse)...)
	case "c", "cpp":
		return collect(content, refInclude, cInclude)
	case "java", "kotlin", "scala":
		return collect(content, refJVM, jvmImport)
	case "ruby":
		return append(collect(content, refRubyRelative, rubyRelative), collect(content, refRuby, rubyRequire)...)
	case "php":
		return append(collect(content, refPHPFile, phpInclude), collect(content, refPHPUse, phpUse)...)
	}
	return nil
}

func collect(content string, kind refKind, patterns ...*regexp.Regexp) []ref {
	var out []ref
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			out = append(out, ref{spec: m[1], kind: kind})
		}
	}
	return out
}

func extractGo(content string) []ref {
	var out []ref
	for _, block := range goImportBlock.FindAllStringSubmatch(content, -1) {
		for _, m := range goQuoted.FindAllStringSubmatch(block[1], -1) {
			out = append(out, ref{spec: m[1], kind: refGo})
		}
	}
	return append(out, collect(content, refGo, goImportSingle)...)
}

func extractPython(content string) []ref {
	var out []ref
	for _, m := range pyImport.FindAllStringSubmatch(content, -1) {
		for _, mod := range strings.Split(m[1], ",") {
			if mod = strings.TrimSpace(mod); mod != "" {
				out = append(out, ref{spec: mod, kind: refPython})
			}
		}
	}
	for _, m := range pyFrom.FindAllStringSubmatch(content, -1) {
		base := m[1]
		out = append(out, ref{spec: base, kind: refPython})
		// "from . import x" and "from pkg import mod" may name submodules
		names := strings.Trim(m[2], "() ")
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if i := strings.Index(name, " as "); i >= 0 {
				name = strings.TrimSpace(name[:i])
			}
			if name == "" || name == "*" {
				continue
			}
			sep := "."
			if strings.HasSuffix(base, ".") {
				sep = ""
			}
			out = append(out, ref{spec: base + sep + name, kind: refPython})
		}
	}
	return out
}
