package parse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// FallbackChunker handles any file whose type none of the other chunkers
// claim: it records filename and size only, no content body, so an
// unrecognized binary still gets an entry in search results by path
//.
type FallbackChunker struct{}

// NewFallbackChunker creates a FallbackChunker.
func NewFallbackChunker() *FallbackChunker {
	return &FallbackChunker{}
}

func (c *FallbackChunker) SupportedExtensions() []string {
	return nil // matches nothing by extension; used only as the last resort
}

func (c *FallbackChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	now := time.Now()
	id := sha256.Sum256([]byte(file.Path))
	return []*Chunk{{
		ID:          hex.EncodeToString(id[:])[:16],
		FilePath:    file.Path,
		Content:     file.Path,
		ContentType: ContentTypeText,
		Metadata:    map[string]string{"size": strconv.Itoa(len(file.Content))},
		CreatedAt:   now,
		UpdatedAt:   now,
	}}, nil
}

var _ Chunker = (*FallbackChunker)(nil)
