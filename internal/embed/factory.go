package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ProviderType selects an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama API (the cross-platform default).
	ProviderOllama ProviderType = "ollama"

	// ProviderMLX uses the MLX sidecar on Apple Silicon: faster, but
	// resident RAM is higher, so it stays opt-in.
	ProviderMLX ProviderType = "mlx"

	// ProviderStatic uses hash-based embeddings, the offline fallback.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder for the given provider. The
// NEURALFS_EMBEDDER environment variable overrides the provider choice;
// NEURALFS_EMBED_CACHE=false disables the query-embedding cache wrapper.
//
// Provider selection never falls back silently: an unavailable provider
// is an error naming the fix, so an index built against one model is
// never quietly extended with vectors from another.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	var embedder Embedder
	var err error

	if envProvider := os.Getenv("NEURALFS_EMBEDDER"); envProvider != "" {
		switch strings.ToLower(envProvider) {
		case "mlx":
			embedder, err = newMLX(ctx)
		case "ollama":
			embedder, err = newOllama(ctx, model)
		case "static":
			embedder = NewStaticEmbedder768()
		}
	}

	if embedder == nil && err == nil {
		switch provider {
		case ProviderMLX:
			embedder, err = newMLX(ctx)
		case ProviderOllama:
			embedder, err = newOllama(ctx, model)
		case ProviderStatic:
			embedder = NewStaticEmbedder768()
		default:
			embedder, err = newOllama(ctx, model)
		}
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("NEURALFS_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newMLX builds the MLX sidecar embedder from config-file settings
// (SetMLXConfig) with environment-variable overrides on top.
func newMLX(ctx context.Context) (Embedder, error) {
	cfg := DefaultMLXConfig()

	if globalMLXConfig.Endpoint != "" {
		cfg.Endpoint = globalMLXConfig.Endpoint
	}
	if globalMLXConfig.Model != "" {
		cfg.Model = globalMLXConfig.Model
	}

	if endpoint := os.Getenv("NEURALFS_MLX_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if model := os.Getenv("NEURALFS_MLX_MODEL"); model != "" {
		cfg.Model = model
	}

	embedder, err := NewMLXEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mlx unavailable: %w\n\nTo fix:\n  1. Start the MLX server: mlx-embedding-server\n  2. Or use Ollama: neuralfsd scan --backend=ollama\n  3. Or use keyword-only search: neuralfsd scan --backend=static", err)
	}
	return embedder, nil
}

// newOllama builds the Ollama embedder from config-file settings with
// environment-variable overrides for host, model, and connect timeout.
func newOllama(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" && isOllamaModelName(model) {
		cfg.Model = model
	}
	if globalOllamaHost != "" {
		cfg.Host = globalOllamaHost
	}

	if host := os.Getenv("NEURALFS_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("NEURALFS_OLLAMA_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("NEURALFS_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.ConnectTimeout = timeout
		}
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use keyword-only search: neuralfsd scan --backend=static", err)
	}
	return embedder, nil
}

// MLXServerConfig holds MLX sidecar settings loaded from the config file.
type MLXServerConfig struct {
	Endpoint string // sidecar endpoint (default: http://localhost:9659)
	Model    string // model size: "small", "medium", "large"
}

// globalMLXConfig holds config-file settings set via SetMLXConfig.
// Environment variables take precedence over these values.
var globalMLXConfig MLXServerConfig

// globalOllamaHost holds the config-file Ollama endpoint set via
// SetOllamaHost. Environment variables take precedence.
var globalOllamaHost string

// SetOllamaHost installs the Ollama endpoint from the user's config
// file. Call before NewEmbedder.
func SetOllamaHost(host string) {
	globalOllamaHost = host
}

// SetMLXConfig installs MLX sidecar settings from the user's config
// file. Call before NewEmbedder.
func SetMLXConfig(cfg MLXServerConfig) {
	globalMLXConfig = cfg
	if cfg.Endpoint != "" || cfg.Model != "" {
		slog.Debug("mlx config set",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("model", cfg.Model))
	}
}

// ParseProvider converts a config string to a ProviderType, defaulting
// unknown values to Ollama.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "mlx":
		return ProviderMLX
	case "ollama":
		return ProviderOllama
	case "static":
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

// String returns the provider name.
func (p ProviderType) String() string {
	return string(p)
}

// isOllamaModelName reports whether a model name looks like an Ollama
// model rather than a GGUF file reference. Ollama names carry a ":tag"
// ("embeddinggemma:300m"); GGUF references carry version suffixes or a
// .gguf extension ("nomic-embed-text-v1.5.Q8_0.gguf").
func isOllamaModelName(model string) bool {
	if strings.Contains(model, ":") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		return false
	}
	if strings.Contains(model, "-v") && strings.Contains(model, ".") {
		return false
	}
	return false
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderMLX),
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo describes a constructed embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo inspects an embedder, unwrapping the cache layer.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *MLXEmbedder:
		info.Provider = ProviderMLX
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}

	return info
}

// MustNewEmbedder creates an embedder and panics on failure. For tests
// and initialization paths where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
