package reconcile

import (
	"path/filepath"
	"strings"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// languageMap maps file extensions (and a few exact filenames) to languages.
var languageMap = map[string]string{
	".go": "go",

	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	".py":  "python",
	".pyw": "python",
	".pyi": "python",

	".html": "html",
	".htm":  "html",
	".css":  "css",
	".scss": "scss",
	".sass": "sass",
	".less": "less",

	".json":       "json",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "toml",
	".xml":        "xml",
	".ini":        "ini",
	".conf":       "config",
	".properties": "properties",

	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",

	".sh":   "shell",
	".bash": "shell",
	".zsh":  "shell",
	".fish": "fish",

	".rb":   "ruby",
	".rake": "ruby",
	".erb":  "erb",

	".rs": "rust",

	".java": "java",
	".kt":   "kotlin",
	".kts":  "kotlin",

	".c":   "c",
	".h":   "c",
	".cpp": "cpp",
	".hpp": "cpp",
	".cc":  "cpp",
	".cxx": "cpp",

	".cs": "csharp",

	".swift": "swift",
	".php":   "php",
	".scala": "scala",

	".ex":  "elixir",
	".exs": "elixir",
	".erl": "erlang",

	".hs":  "haskell",
	".lua": "lua",
	".r":   "r",
	".R":   "r",
	".sql": "sql",

	"Dockerfile":  "dockerfile",
	"Makefile":    "makefile",
	"makefile":    "makefile",
	"GNUmakefile": "makefile",

	".vue":     "vue",
	".svelte":  "svelte",
	".graphql": "graphql",
	".gql":     "graphql",
	".proto":   "protobuf",

	".pdf": "pdf",

	".png":  "image",
	".jpg":  "image",
	".jpeg": "image",
	".gif":  "image",
	".webp": "image",
	".bmp":  "image",
}

// contentTypeMap maps a detected language to a metadata.ContentType.
var contentTypeMap = map[string]metadata.ContentType{
	"go": metadata.ContentTypeCode, "javascript": metadata.ContentTypeCode,
	"typescript": metadata.ContentTypeCode, "python": metadata.ContentTypeCode,
	"ruby": metadata.ContentTypeCode, "rust": metadata.ContentTypeCode,
	"java": metadata.ContentTypeCode, "kotlin": metadata.ContentTypeCode,
	"c": metadata.ContentTypeCode, "cpp": metadata.ContentTypeCode,
	"csharp": metadata.ContentTypeCode, "swift": metadata.ContentTypeCode,
	"php": metadata.ContentTypeCode, "scala": metadata.ContentTypeCode,
	"elixir": metadata.ContentTypeCode, "erlang": metadata.ContentTypeCode,
	"haskell": metadata.ContentTypeCode, "lua": metadata.ContentTypeCode,
	"r": metadata.ContentTypeCode, "sql": metadata.ContentTypeCode,
	"shell": metadata.ContentTypeCode, "fish": metadata.ContentTypeCode,
	"erb": metadata.ContentTypeCode, "vue": metadata.ContentTypeCode,
	"svelte": metadata.ContentTypeCode, "graphql": metadata.ContentTypeCode,
	"protobuf": metadata.ContentTypeCode, "html": metadata.ContentTypeCode,
	"css": metadata.ContentTypeCode, "scss": metadata.ContentTypeCode,
	"sass": metadata.ContentTypeCode, "less": metadata.ContentTypeCode,

	"markdown": metadata.ContentTypeMarkdown,
	"rst":      metadata.ContentTypeMarkdown,

	"text": metadata.ContentTypeText,

	"json": metadata.ContentTypeText, "yaml": metadata.ContentTypeText,
	"toml": metadata.ContentTypeText, "xml": metadata.ContentTypeText,
	"ini": metadata.ContentTypeText, "config": metadata.ContentTypeText,
	"properties": metadata.ContentTypeText, "dockerfile": metadata.ContentTypeText,
	"makefile": metadata.ContentTypeText,

	"pdf":   metadata.ContentTypePDF,
	"image": metadata.ContentTypeImage,
}

// DetectLanguage detects the programming language (or document kind) of a
// file from its path, checking exact filename matches (Dockerfile,
// Makefile) before extension.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := languageMap[base]; ok {
		return lang
	}
	if lang, ok := languageMap[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return ""
}

// DetectContentType maps a language to the content type its parser should
// use (code/markdown/pdf/image/text).
func DetectContentType(language string) metadata.ContentType {
	if ct, ok := contentTypeMap[language]; ok {
		return ct
	}
	return metadata.ContentTypeText
}
