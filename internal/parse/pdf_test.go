package parse

import (
	"bytes"
	"compress/zlib"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPDFStream(t *testing.T, content string, compress bool) []byte {
	t.Helper()
	body := []byte(content)
	if compress {
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		_, err := w.Write(body)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		body = buf.Bytes()
	}
	var out bytes.Buffer
	out.WriteString("stream\n")
	out.Write(body)
	out.WriteString("\nendstream")
	return out.Bytes()
}

func TestPDFChunker_Chunk_ExtractsTjText(t *testing.T) {
	raw := buildPDFStream(t, "BT (Hello World) Tj ET", false)

	chunker := NewPDFChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "doc.pdf", Content: raw})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Hello World")
	assert.Equal(t, ContentTypePDF, chunks[0].ContentType)
	assert.Equal(t, 1, chunks[0].Page)
}

func TestPDFChunker_Chunk_ExtractsTJArrayText(t *testing.T) {
	raw := buildPDFStream(t, "BT [(Hel)(lo)] TJ ET", false)

	chunker := NewPDFChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "doc.pdf", Content: raw})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Hel")
	assert.Contains(t, chunks[0].Content, "lo")
}

func TestPDFChunker_Chunk_DecompressesFlateStream(t *testing.T) {
	raw := buildPDFStream(t, "BT (Compressed Text) Tj ET", true)

	chunker := NewPDFChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "doc.pdf", Content: raw})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Compressed Text")
}

func TestPDFChunker_Chunk_MultipleStreamsGetSequentialPages(t *testing.T) {
	var all bytes.Buffer
	all.Write(buildPDFStream(t, "BT (Page One) Tj ET", false))
	all.WriteString("\n")
	all.Write(buildPDFStream(t, "BT (Page Two) Tj ET", false))

	chunker := NewPDFChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "doc.pdf", Content: all.Bytes()})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
}

func TestPDFChunker_Chunk_NoStreamsReturnsNil(t *testing.T) {
	chunker := NewPDFChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: "empty.pdf", Content: []byte("%PDF-1.4\n%%EOF")})

	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestPDFChunker_SupportedExtensions(t *testing.T) {
	assert.Equal(t, []string{".pdf"}, NewPDFChunker().SupportedExtensions())
}
