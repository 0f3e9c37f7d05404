package scanner

import (
	"path/filepath"
	"strings"
)

var extLanguages = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".swift": "swift",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".vue":   "vue",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
}

var nameLanguages = map[string]string{
	"Makefile":   "make",
	"Dockerfile": "docker",
}

// Language maps a file name to a language tag, "" when untracked.
func Language(path string) string {
	base := filepath.Base(path)
	if lang, ok := nameLanguages[base]; ok {
		return lang
	}
	return extLanguages[strings.ToLower(filepath.Ext(base))]
}
