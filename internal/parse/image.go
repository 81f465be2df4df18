package parse

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"
)

// ImageChunker produces a single metadata-only chunk per image: format and
// dimensions decoded via the standard library's image package, no pixel
// data or OCR text. Image files carry no text to tokenize for BM25, so the
// embedding engine's multimodal path (internal/embed) is what actually
// makes these searchable; this chunk exists so the file still has a
// content-addressable row in the metadata store.
type ImageChunker struct{}

// NewImageChunker creates an ImageChunker.
func NewImageChunker() *ImageChunker {
	return &ImageChunker{}
}

func (c *ImageChunker) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}
}

func (c *ImageChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(file.Content))
	now := time.Now()

	metadata := map[string]string{}
	if err == nil {
		metadata["format"] = format
		metadata["width"] = fmt.Sprintf("%d", cfg.Width)
		metadata["height"] = fmt.Sprintf("%d", cfg.Height)
	} else {
		metadata["format"] = "unknown"
	}

	id := sha256.Sum256([]byte(file.Path))
	return []*Chunk{{
		ID:          hex.EncodeToString(id[:])[:16],
		FilePath:    file.Path,
		Content:     fmt.Sprintf("image %s (%sx%s)", metadata["format"], metadata["width"], metadata["height"]),
		ContentType: ContentTypeImage,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}, nil
}

var _ Chunker = (*ImageChunker)(nil)
