package infer

import (
	"context"
	"sort"
	"time"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	RemoteEnabled     bool
	RemoteTimeout     time.Duration
	MergeWeights      MergeWeights
	SensitivePatterns []string
	MonthlyCostLimit  float64
	RequestsPerMinute int
	CacheSize         int
	CacheTTL          time.Duration
	// CostPerToken estimates USD cost per remote token for the cost
	// tracker, since the generic remote adapter doesn't know a specific
	// provider's billing model.
	CostPerToken float64
}

// DefaultCoordinatorConfig returns the coordinator defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		RemoteEnabled:     false,
		RemoteTimeout:     500 * time.Millisecond,
		MergeWeights:      DefaultMergeWeights(),
		MonthlyCostLimit:  10.0,
		RequestsPerMinute: 20,
		CacheSize:         DefaultCacheSize,
		CacheTTL:          DefaultCacheTTL,
		CostPerToken:      0.000002,
	}
}

// Coordinator is the sole orchestrator for hybrid inference:
// it owns the cache and cost tracker, and workers (local/remote inferers)
// stay stateless.
type Coordinator struct {
	local  LocalInferer
	remote RemoteInferer

	config     CoordinatorConfig
	cache      *ResultCache
	anonymizer *Anonymizer
	limiter    *RateLimiter
	cost       *CostTracker
}

// NewCoordinator wires a Coordinator. remote may be nil when remote
// dispatch is disabled entirely (CoordinatorConfig.RemoteEnabled = false);
// a non-nil remote with RemoteEnabled = false is still never dispatched.
func NewCoordinator(local LocalInferer, remote RemoteInferer, store metadata.Store, cfg CoordinatorConfig) *Coordinator {
	if cfg.MergeWeights.Local == 0 && cfg.MergeWeights.Remote == 0 {
		cfg.MergeWeights = DefaultMergeWeights()
	}
	return &Coordinator{
		local:      local,
		remote:     remote,
		config:     cfg,
		cache:      NewResultCache(cfg.CacheSize, cfg.CacheTTL),
		anonymizer: NewAnonymizer(cfg.SensitivePatterns),
		limiter:    NewRateLimiter(cfg.RequestsPerMinute),
		cost:       NewCostTracker(store, cfg.MonthlyCostLimit),
	}
}

// Infer runs one inference request through the full coordinator pipeline:
// cache lookup, local+remote dispatch, merge, cache store.
func (c *Coordinator) Infer(ctx context.Context, req Request) (*Result, error) {
	if cached, ok := c.cache.Get(req.Query); ok {
		return &cached, nil
	}

	localScores, err := c.local.InferLocal(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	result := Result{Query: req.Query, Scores: sortScores(localScores), Source: SourceLocal, AskedAt: time.Now()}

	if c.shouldDispatchRemote(req) {
		remoteScores, ok := c.dispatchRemote(ctx, req.Query)
		if ok {
			result.Scores = sortScores(mergeScores(localScores, remoteScores, c.config.MergeWeights))
			result.Source = SourceMerged
		}
	}

	c.cache.Set(req.Query, result)
	return &result, nil
}

// shouldDispatchRemote gates the remote leg: it never runs when the
// request touches a private file, regardless of configuration.
func (c *Coordinator) shouldDispatchRemote(req Request) bool {
	if req.ContainsPrivate {
		return false
	}
	return c.config.RemoteEnabled && req.AllowRemote && c.remote != nil
}

// dispatchRemote anonymizes the query, checks the rate limiter and cost
// tracker, and runs the remote leg with the configured timeout. It never
// returns an error to the caller: on remote timeout or error the result
// simply falls back to local-only.
func (c *Coordinator) dispatchRemote(ctx context.Context, query string) ([]FileScore, bool) {
	if !c.limiter.Allow() {
		return nil, false
	}
	if !c.cost.Allow(ctx) {
		return nil, false
	}

	anonPrompt := c.anonymizer.Anonymize(query)

	rctx, cancel := context.WithTimeout(ctx, c.config.RemoteTimeout)
	defer cancel()

	scores, err := c.remote.InferRemote(rctx, anonPrompt)
	if err != nil {
		return nil, false
	}

	if tr, ok := c.remote.(interface{ LastTokens() int64 }); ok {
		tokens := tr.LastTokens()
		_ = c.cost.Record(ctx, tokens, float64(tokens)*c.config.CostPerToken)
	}

	return scores, true
}

// mergeScores weighted-averages per-file scores present in both result
// sets and unions files present in only one.
func mergeScores(local, remote []FileScore, weights MergeWeights) []FileScore {
	byFile := make(map[string]float64, len(local)+len(remote))
	inLocal := make(map[string]bool, len(local))
	inRemote := make(map[string]bool, len(remote))

	for _, s := range local {
		byFile[s.FileID] += s.Score * weights.Local
		inLocal[s.FileID] = true
	}
	for _, s := range remote {
		byFile[s.FileID] += s.Score * weights.Remote
		inRemote[s.FileID] = true
	}

	// Files seen in only one source got their share of the weighted sum
	// already; renormalize them back to that source's own scale so a
	// local-only file isn't unfairly discounted by the remote weight it
	// never received a contribution from.
	out := make([]FileScore, 0, len(byFile))
	for fileID, score := range byFile {
		switch {
		case inLocal[fileID] && inRemote[fileID]:
			out = append(out, FileScore{FileID: fileID, Score: score})
		case inLocal[fileID] && weights.Local > 0:
			out = append(out, FileScore{FileID: fileID, Score: score / weights.Local})
		case weights.Remote > 0:
			out = append(out, FileScore{FileID: fileID, Score: score / weights.Remote})
		default:
			out = append(out, FileScore{FileID: fileID, Score: score})
		}
	}
	return out
}

func sortScores(scores []FileScore) []FileScore {
	out := make([]FileScore, len(scores))
	copy(out, scores)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].FileID < out[j].FileID
	})
	return out
}
