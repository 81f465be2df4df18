package parse

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"time"
)

// PDFChunker extracts per-page text from a PDF by walking its object
// streams directly, without a PDF rendering library (the retrieval corpus
// this module was built from carries none — see DESIGN.md). It only
// handles uncompressed and Flate-compressed content streams showing text
// via Tj/TJ operators, which covers the vast majority of text-based PDFs
// produced by common tools; scanned/image-only PDFs yield no chunks.
type PDFChunker struct {
	maxChunkChars int
}

// NewPDFChunker creates a PDFChunker with the default chunk size.
func NewPDFChunker() *PDFChunker {
	return &PDFChunker{maxChunkChars: DefaultMaxChunkTokens * TokensPerChar}
}

func (c *PDFChunker) SupportedExtensions() []string {
	return []string{".pdf"}
}

var (
	streamRe  = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
	tjTextRe  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	ttArrRe   = regexp.MustCompile(`(?s)\[((?:[^\[\]]|\\.)*)\]\s*TJ`)
	tjPieceRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
)

// Chunk splits a PDF into one chunk per page-worth of extracted text
// streams, in document order. Page numbers are best-effort: this walks
// streams in byte order, not the page tree, so "page" here tracks the Nth
// content stream rather than a PDF page object.
func (c *PDFChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	matches := streamRe.FindAllSubmatch(file.Content, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	now := time.Now()
	var chunks []*Chunk

	for i, m := range matches {
		select {
		case <-ctx.Done():
			return chunks, ctx.Err()
		default:
		}

		raw := m[1]
		text := extractPDFText(raw)
		if text == "" {
			continue
		}

		id := pdfChunkID(file.Path, i)
		chunks = append(chunks, &Chunk{
			ID:          id,
			FilePath:    file.Path,
			Content:     text,
			ContentType: ContentTypePDF,
			Page:        i + 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return chunks, nil
}

// extractPDFText decodes a content stream (inflating it first if it looks
// zlib-compressed) and pulls text shown via Tj/TJ operators.
func extractPDFText(raw []byte) string {
	decoded := raw
	if r, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		if inflated, err := io.ReadAll(r); err == nil {
			decoded = inflated
		}
		_ = r.Close()
	}

	var buf bytes.Buffer

	for _, m := range tjTextRe.FindAllSubmatch(decoded, -1) {
		buf.Write(unescapePDFString(m[1]))
		buf.WriteByte(' ')
	}

	for _, m := range ttArrRe.FindAllSubmatch(decoded, -1) {
		for _, piece := range tjPieceRe.FindAllSubmatch(m[1], -1) {
			buf.Write(unescapePDFString(piece[1]))
		}
		buf.WriteByte(' ')
	}

	return buf.String()
}

func unescapePDFString(s []byte) []byte {
	var out bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case '(', ')', '\\':
				out.WriteByte(s[i+1])
			default:
				out.WriteByte(s[i+1])
			}
			i++
			continue
		}
		out.WriteByte(s[i])
	}
	return out.Bytes()
}

func pdfChunkID(path string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", path, index)))
	return hex.EncodeToString(h[:])[:16]
}

var _ Chunker = (*PDFChunker)(nil)
