// Package parse turns discovered files into retrievable chunks: one
// Chunker per content family, selected by extension, behind a single
// capability lookup.
package parse

import (
	"path/filepath"
	"strings"
)

// Registry dispatches a file to the Chunker registered for its extension,
// falling back to a metadata-only chunker for anything unrecognized.
type Registry struct {
	byExt    map[string]Chunker
	fallback Chunker
}

// NewRegistry builds the default registry: tree-sitter code chunking,
// markdown section chunking, PDF page-stream extraction, image metadata,
// and the catch-all fallback.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:    make(map[string]Chunker),
		fallback: NewFallbackChunker(),
	}

	r.register(NewCodeChunker())
	r.register(NewMarkdownChunker())
	r.register(NewPDFChunker())
	r.register(NewImageChunker())

	return r
}

func (r *Registry) register(c Chunker) {
	for _, ext := range c.SupportedExtensions() {
		r.byExt[strings.ToLower(ext)] = c
	}
}

// For returns the chunker responsible for path's extension, or the
// fallback chunker if none claims it.
func (r *Registry) For(path string) Chunker {
	ext := strings.ToLower(filepath.Ext(path))
	if c, ok := r.byExt[ext]; ok {
		return c
	}
	return r.fallback
}
