package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aimerfeng/neuralfs/internal/embed"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/parse"
	"github.com/aimerfeng/neuralfs/internal/relation"
	"github.com/aimerfeng/neuralfs/internal/tag"
	"github.com/aimerfeng/neuralfs/internal/textindex"
	"github.com/aimerfeng/neuralfs/internal/vector"
)

// Pipeline wires a task's file path through parsing, embedding, and the
// three stores (metadata, vector, sparse text) into a single ProcessFunc
// the Engine can drive. It is the concrete indexing work; Engine itself
// only knows about retry/backoff, not what "processing a task" means.
//
// Tags and Relations are optional downstream steps after the three stores
// (auto-tagging and similarity-link generation). Both
// are nil-safe: a caller wiring a reduced/offline pipeline can leave them
// unset and only the stores above get populated.
type Pipeline struct {
	Registry  *parse.Registry
	Embedder  embed.Embedder
	Metadata  metadata.Store
	Vector    *vector.Store
	TextIndex textindex.Index
	Tags      *tag.Service
	Relations *relation.Service

	windower *embed.DilutedWindower
}

// imageEmbedder is the optional capability of producing a vector straight
// from image bytes. The Ollama provider implements it for multimodal
// models; when the active embedder (after unwrapping the cache layer)
// doesn't, image files index by filename and metadata only.
type imageEmbedder interface {
	EmbedImage(ctx context.Context, raw []byte) ([]float32, error)
}

// NewPipeline creates a Pipeline from its component dependencies. Any of
// Embedder/Vector/TextIndex may be nil to run in a reduced mode (e.g.
// offline static-embedding-only indexing still needs Embedder set, but a
// metadata-only dry run can omit Vector/TextIndex).
func NewPipeline(registry *parse.Registry, embedder embed.Embedder, store metadata.Store, vec *vector.Store, text textindex.Index) *Pipeline {
	return &Pipeline{
		Registry:  registry,
		Embedder:  embedder,
		Metadata:  store,
		Vector:    vec,
		TextIndex: text,
		windower:  embed.NewDilutedWindower(0, 0, 0, 0),
	}
}

// ProcessFunc returns a ProcessFunc bound to this pipeline's dependencies,
// suitable for passing to indexer.New.
func (p *Pipeline) ProcessFunc() ProcessFunc {
	return p.processTask
}

func (p *Pipeline) processTask(ctx context.Context, task *metadata.IndexTask) error {
	info, err := os.Stat(task.FilePath)
	if os.IsNotExist(err) {
		return p.removeFile(ctx, task.FilePath)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", task.FilePath, err)
	}

	content, err := os.ReadFile(task.FilePath)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%s: %w", task.FilePath, ErrFileLocked)
		}
		return fmt.Errorf("read %s: %w", task.FilePath, err)
	}

	fileID := hashPath(task.FilePath)
	contentHash := hashBytes(content)

	chunker := p.Registry.For(task.FilePath)
	chunks, err := chunker.Chunk(ctx, &parse.FileInput{Path: task.FilePath, Content: content})
	if err != nil {
		return fmt.Errorf("chunk %s: %w", task.FilePath, err)
	}

	now := time.Now()
	file := &metadata.File{
		ID:          fileID,
		Path:        task.FilePath,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentHash: contentHash,
		IndexedAt:   now,
	}
	if len(chunks) > 0 {
		file.Language = chunks[0].Language
		file.ContentType = metadata.ContentType(chunks[0].ContentType)
	}
	if err := p.Metadata.SaveFiles(ctx, []*metadata.File{file}); err != nil {
		return fmt.Errorf("save file metadata: %w", err)
	}

	if err := p.Metadata.DeleteChunksByFile(ctx, fileID); err != nil {
		return fmt.Errorf("clear stale chunks: %w", err)
	}

	metaChunks := make([]*metadata.Chunk, 0, len(chunks))
	vectorIDs := make([]string, 0, len(chunks))
	vectorTexts := make([]string, 0, len(chunks))
	textDocs := make([]*textindex.Document, 0, len(chunks))

	for i, c := range chunks {
		chunkID := hexHash(fmt.Sprintf("%s:%d", fileID, i))
		metaChunks = append(metaChunks, &metadata.Chunk{
			ID:          chunkID,
			FileID:      fileID,
			Content:     c.Content,
			ContentType: metadata.ContentType(c.ContentType),
			Language:    c.Language,
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			Page:        c.Page,
			Metadata:    c.Metadata,
			CreatedAt:   now,
			UpdatedAt:   now,
		})

		if c.Content != "" {
			textDocs = append(textDocs, &textindex.Document{ID: chunkID, Content: c.Content})
			if p.Embedder != nil {
				vectorIDs = append(vectorIDs, chunkID)
				vectorTexts = append(vectorTexts, c.Content)
			}
		}
	}

	if err := p.Metadata.SaveChunks(ctx, metaChunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	if p.TextIndex != nil && len(textDocs) > 0 {
		if err := p.TextIndex.Index(ctx, textDocs); err != nil {
			return fmt.Errorf("text index: %w", err)
		}
	}

	var fileVector []float32
	if p.Embedder != nil && p.Vector != nil && len(vectorTexts) > 0 {
		vectors, err := p.embedTexts(ctx, vectorTexts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if err := p.Vector.Add(ctx, vectorIDs, vectors); err != nil {
			return fmt.Errorf("vector add: %w", err)
		}
		fileVector = averageVector(vectors)
	}

	// Image files carry no text chunks; a multimodal embedder can still
	// give them a dense vector for visual similarity search.
	if fileVector == nil && p.Vector != nil && file.ContentType == metadata.ContentTypeImage {
		if vec := p.embedImage(ctx, content); vec != nil {
			imageVecID := hexHash(fileID + ":image")
			if err := p.Vector.Add(ctx, []string{imageVecID}, [][]float32{vec}); err != nil {
				return fmt.Errorf("vector add image: %w", err)
			}
			fileVector = vec
		}
	}

	if p.Tags != nil {
		if _, err := p.Tags.AutoTag(ctx, file, metaChunks); err != nil {
			slog.Warn("auto-tag failed", "file", file.Path, "error", err)
		}
	}

	if p.Relations != nil && fileVector != nil {
		if _, err := p.Relations.GenerateContentSimilarity(ctx, fileID, fileVector); err != nil {
			slog.Warn("relation generation failed", "file", file.Path, "error", err)
		}
	}

	return nil
}

// approxTokens estimates the provider-side token count of a text; four
// bytes per token is close enough to decide whether dilution is needed.
func approxTokens(text string) int {
	return len(text) / 4
}

// embedTexts embeds each text, diluting any single text whose estimated
// token count exceeds the provider context window: the long text is split
// into overlapping windows, a strided subset is embedded, and the mean of
// the window vectors stands in for the whole text.
func (p *Pipeline) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	short := make([]string, 0, len(texts))
	shortIdx := make([]int, 0, len(texts))
	out := make([][]float32, len(texts))

	for i, t := range texts {
		if approxTokens(t) <= embed.DefaultContext {
			short = append(short, t)
			shortIdx = append(shortIdx, i)
			continue
		}
		vec, err := p.embedDiluted(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}

	if len(short) > 0 {
		vectors, err := p.Embedder.EmbedBatch(ctx, short)
		if err != nil {
			return nil, err
		}
		for j, idx := range shortIdx {
			out[idx] = vectors[j]
		}
	}

	return out, nil
}

// embedDiluted windows one oversized text and embeds the strided subset.
func (p *Pipeline) embedDiluted(ctx context.Context, text string) ([]float32, error) {
	const bytesPerToken = 4
	total := approxTokens(text)
	windows := p.windower.Diluted(total)

	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		start := w.TokenStart * bytesPerToken
		end := w.TokenEnd * bytesPerToken
		if end > len(text) {
			end = len(text)
		}
		if start >= end {
			continue
		}
		parts = append(parts, text[start:end])
	}
	if len(parts) == 0 {
		parts = []string{text}
	}

	vectors, err := p.Embedder.EmbedBatch(ctx, parts)
	if err != nil {
		return nil, err
	}
	return averageVector(vectors), nil
}

// embedImage produces a vector from raw image bytes when the active
// embedder supports it. Failures degrade to no image vector.
func (p *Pipeline) embedImage(ctx context.Context, raw []byte) []float32 {
	e := p.Embedder
	if cached, ok := e.(*embed.CachedEmbedder); ok {
		e = cached.Inner()
	}
	ie, ok := e.(imageEmbedder)
	if !ok {
		return nil
	}
	vec, err := ie.EmbedImage(ctx, raw)
	if err != nil {
		slog.Debug("image embedding failed", "error", err)
		return nil
	}
	return vec
}

// averageVector returns the element-wise mean of vecs, used as a single
// file-level embedding for content-similarity relation generation when a
// file chunks into several pieces. Returns nil for an empty
// input.
func averageVector(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	out := make([]float32, dim)
	for _, v := range vecs {
		for i := 0; i < dim && i < len(v); i++ {
			out[i] += v[i]
		}
	}
	n := float32(len(vecs))
	for i := range out {
		out[i] /= n
	}
	return out
}

func (p *Pipeline) removeFile(ctx context.Context, path string) error {
	fileID := hashPath(path)
	if err := p.Metadata.DeleteChunksByFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete chunks for removed file: %w", err)
	}
	if err := p.Metadata.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete removed file: %w", err)
	}
	return nil
}

func hashPath(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:])
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func hexHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}
