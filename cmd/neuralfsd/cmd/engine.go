package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aimerfeng/neuralfs/internal/asset"
	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/embed"
	"github.com/aimerfeng/neuralfs/internal/indexer"
	"github.com/aimerfeng/neuralfs/internal/infer"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/parse"
	"github.com/aimerfeng/neuralfs/internal/relation"
	"github.com/aimerfeng/neuralfs/internal/router"
	"github.com/aimerfeng/neuralfs/internal/search"
	"github.com/aimerfeng/neuralfs/internal/tag"
	"github.com/aimerfeng/neuralfs/internal/telemetry"
	"github.com/aimerfeng/neuralfs/internal/textindex"
	"github.com/aimerfeng/neuralfs/internal/vector"
)

// engine bundles every component the daemon runs, built once by openEngine
// and shared by serve/scan/search/status so they all agree on paths and
// wiring.
type engine struct {
	cfg     *config.Config
	root    string
	dataDir string
	vecPath string

	store     *metadata.SQLiteStore
	vec       *vector.Store
	text      textindex.Index
	embedder  embed.Embedder
	modelMem  *embed.MemoryManager
	metrics   *telemetry.QueryMetrics
	registry  *parse.Registry
	tags      *tag.Service
	relations *relation.Service
	searcher  *search.Engine
	idx       *indexer.Engine
	assets    *asset.Server
	progress  *router.ProgressTracker
	router    *router.Service
}

// vectorSearcher adapts *vector.Store to relation.VectorSearcher.
type vectorSearcher struct{ store *vector.Store }

func (v vectorSearcher) Search(ctx context.Context, query []float32, k int, filter func(id string) bool) ([]relation.VectorResult, error) {
	hits, err := v.store.Search(ctx, query, k, vector.FilterFunc(filter))
	if err != nil {
		return nil, err
	}
	out := make([]relation.VectorResult, len(hits))
	for i, h := range hits {
		out[i] = relation.VectorResult{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

// engineOptions controls which optional components openEngine builds.
type engineOptions struct {
	// offline forces static embeddings, skipping model servers entirely.
	offline bool
	// withAssets starts the loopback thumbnail/preview/file server.
	withAssets bool
	// withIndexer builds the write path (parser, pipeline, task engine).
	// Read-only commands (search, status) leave it off so they never
	// contend with a running daemon for the task queue.
	withIndexer bool
}

// openEngine builds the component graph rooted at root. Callers must call
// close() when done; it is safe to call after a partial failure.
func openEngine(ctx context.Context, root string, opts engineOptions) (*engine, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, root: root}
	e.dataDir = filepath.Join(root, ".neuralfs")
	if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	e.store, err = metadata.NewSQLiteStore(filepath.Join(e.dataDir, "metadata.db"))
	if err != nil {
		return nil, err
	}

	e.embedder, err = openEmbedder(ctx, cfg, opts.offline)
	if err != nil {
		e.close()
		return nil, err
	}

	// Account the loaded model against the configured memory budget; a
	// later hot-swap to a second model evicts this one LRU-first.
	budgetMB := cfg.Embeddings.MemoryBudgetMB
	if budgetMB <= 0 {
		budgetMB = cfg.Performance.MaxVRAMMB
	}
	e.modelMem = embed.NewMemoryManager(int64(budgetMB) * 1024 * 1024)
	e.embedder = e.modelMem.Acquire(e.embedder.ModelName(), e.embedder)

	e.vec, err = vector.New(vector.DefaultConfig(e.embedder.Dimensions()))
	if err != nil {
		e.close()
		return nil, err
	}
	e.vecPath = filepath.Join(e.dataDir, "vectors.hnsw")
	if fileExists(e.vecPath) {
		if err := e.vec.Load(e.vecPath); err != nil {
			e.close()
			return nil, err
		}
	}

	bm25Base := filepath.Join(e.dataDir, "bm25")
	backend := string(textindex.DetectBackend(bm25Base))
	e.text, err = textindex.NewWithBackend(bm25Base, textindex.DefaultConfig(), backend)
	if err != nil {
		e.close()
		return nil, err
	}

	e.tags = tag.New(e.store, cfg.Privacy.SensitiveTags)

	relCfg := relation.DefaultConfig()
	if cfg.Sessions.TimeoutMinutes > 0 {
		relCfg.SessionTimeout = time.Duration(cfg.Sessions.TimeoutMinutes) * time.Minute
	}
	e.relations = relation.New(e.store, vectorSearcher{e.vec}, relCfg)
	e.tags.SetSimilarBlocker(e.relations)

	searchCfg := search.DefaultConfig()
	if cfg.Search.MaxResults > 0 {
		searchCfg.DefaultLimit = cfg.Search.MaxResults
	}
	searchCfg.DefaultWeights = search.Weights{
		BM25:     cfg.Search.BM25Weight,
		Semantic: cfg.Search.SemanticWeight,
	}
	searchOpts := []search.EngineOption{}
	if err := telemetry.InitTelemetrySchema(e.store.DB()); err == nil {
		if metricsStore, err := telemetry.NewSQLiteMetricsStore(e.store.DB()); err == nil {
			e.metrics = telemetry.NewQueryMetrics(metricsStore)
			searchOpts = append(searchOpts, search.WithMetrics(e.metrics))
		}
	}

	e.searcher, err = search.NewEngine(e.text, e.vec, e.embedder, e.store, searchCfg, searchOpts...)
	if err != nil {
		e.close()
		return nil, err
	}

	if opts.withIndexer {
		e.registry = parse.NewRegistry()
		pipeline := indexer.NewPipeline(e.registry, e.embedder, e.store, e.vec, e.text)
		pipeline.Tags = e.tags
		pipeline.Relations = e.relations

		idxCfg := indexer.DefaultConfig()
		if cfg.Performance.IndexingThreads > 0 {
			idxCfg.Workers = cfg.Performance.IndexingThreads
		}
		e.idx = indexer.New(e.store, pipeline.ProcessFunc(), idxCfg)
	}

	if opts.withAssets {
		e.assets, err = asset.NewServer(e.store, asset.Config{
			Port:          cfg.Server.AssetStreamPort,
			ThumbnailSize: cfg.UI.ThumbnailSize,
		})
		if err != nil {
			e.close()
			return nil, err
		}
	}

	e.progress = router.NewProgressTracker()
	e.router = router.New(e.searcher, e.store, e.tags, e.relations, e.assets, e.idx, cfg, e.progress, root)
	e.router.SetInference(buildInference(e, cfg))

	return e, nil
}

// openEmbedder picks the embedding provider: static when offline, otherwise
// the configured provider with the factory's availability fallback.
func openEmbedder(ctx context.Context, cfg *config.Config, offline bool) (embed.Embedder, error) {
	if offline {
		return embed.NewEmbedder(ctx, embed.ProviderStatic, "")
	}
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})
	embed.SetOllamaHost(cfg.Embeddings.OllamaHost)
	return embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model)
}

// buildInference wires the hybrid inference coordinator: the local path
// scores files via the search engine, the remote path is only attached when
// cloud inference is enabled in config.
func buildInference(e *engine, cfg *config.Config) *infer.Coordinator {
	local := infer.NewSearchLocalInferer(e.searcher.Search, cfg.Search.MaxResults)

	coordCfg := infer.DefaultCoordinatorConfig()
	coordCfg.RemoteEnabled = cfg.Cloud.Enabled
	coordCfg.SensitivePatterns = cfg.Privacy.ExcludedPatterns
	if cfg.Cloud.MonthlyCostLimit > 0 {
		coordCfg.MonthlyCostLimit = cfg.Cloud.MonthlyCostLimit
	}
	if cfg.Cloud.RequestsPerMinute > 0 {
		coordCfg.RequestsPerMinute = cfg.Cloud.RequestsPerMinute
	}
	if cfg.Cloud.TimeoutMS > 0 {
		coordCfg.RemoteTimeout = time.Duration(cfg.Cloud.TimeoutMS) * time.Millisecond
	}

	var remote infer.RemoteInferer
	if cfg.Cloud.Enabled {
		remote = infer.NewHTTPRemoteInferer(infer.RemoteConfig{
			Endpoint: cfg.Cloud.Endpoint,
			APIKey:   cfg.Cloud.APIKey,
			Provider: cfg.Cloud.Provider,
			Model:    cfg.Cloud.Model,
			Timeout:  coordCfg.RemoteTimeout,
		})
	}

	return infer.NewCoordinator(local, remote, e.store, coordCfg)
}

// close tears the engine down in reverse dependency order. The search
// engine owns closing the BM25 index, vector store, and metadata store; the
// vector graph is saved first since it only lives in memory.
func (e *engine) close() {
	if e.idx != nil {
		e.idx.Stop()
		e.idx.Wait()
	}
	if e.assets != nil {
		_ = e.assets.Close()
	}
	if e.vec != nil && e.vecPath != "" {
		if err := e.vec.Save(e.vecPath); err != nil {
			slog.Warn("failed to save vector index", slog.String("error", err.Error()))
		}
	}
	if e.metrics != nil {
		_ = e.metrics.Close()
	}
	if e.searcher != nil {
		_ = e.searcher.Close()
	} else {
		if e.text != nil {
			_ = e.text.Close()
		}
		if e.vec != nil {
			_ = e.vec.Close()
		}
		if e.store != nil {
			_ = e.store.Close()
		}
	}
	if e.modelMem != nil {
		e.modelMem.Close()
	}
	if e.embedder != nil {
		_ = e.embedder.Close()
	}
}
