// Package embed produces dense vectors for text and images through a set
// of interchangeable providers: a service-backed embedder (Ollama), an
// MLX sidecar on Apple Silicon, and an offline hash-based fallback.
// Loaded models are accounted against a memory budget (budget.go) and
// long documents are diluted into overlapping windows (windower.go).
package embed

import (
	"context"
	"math"
	"time"
)

// Batch limits shared by every provider.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize caps one request's batch to bound provider memory.
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32
)

// Timeouts. A provider whose model has gone idle long enough to be
// unloaded needs far longer for the first request than for the rest.
const (
	// DefaultWarmTimeout bounds a request when the model is resident.
	DefaultWarmTimeout = 30 * time.Second

	// DefaultColdTimeout bounds a request that may first trigger a model
	// load from disk.
	DefaultColdTimeout = 120 * time.Second

	// ModelUnloadThreshold is the idle span after which the serving model
	// is assumed unloaded and cold timeouts apply again.
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries is the default number of attempts per request.
	DefaultMaxRetries = 3
)

// Dimension defaults.
const (
	// DefaultDimensions is the dimension assumed when a provider cannot
	// report its own.
	DefaultDimensions = 768

	// DefaultContext is the provider-side token window assumed when
	// splitting long inputs.
	DefaultContext = 2048

	// StaticDimensions is the dimension of the compact hash embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. A zero vector is
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
