package parse

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageChunker_Chunk_ReportsFormatAndDimensions(t *testing.T) {
	data := encodeTestPNG(t, 32, 16)

	chunker := NewImageChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "photo.png", Content: data})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ContentTypeImage, chunks[0].ContentType)
	assert.Equal(t, "png", chunks[0].Metadata["format"])
	assert.Equal(t, "32", chunks[0].Metadata["width"])
	assert.Equal(t, "16", chunks[0].Metadata["height"])
}

func TestImageChunker_Chunk_UndecodableDataYieldsUnknownFormat(t *testing.T) {
	chunker := NewImageChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "broken.png", Content: []byte("not an image")})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "unknown", chunks[0].Metadata["format"])
}

func TestImageChunker_SupportedExtensions(t *testing.T) {
	exts := NewImageChunker().SupportedExtensions()
	assert.Contains(t, exts, ".png")
	assert.Contains(t, exts, ".jpg")
	assert.Contains(t, exts, ".gif")
}
