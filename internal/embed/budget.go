package embed

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default per-model memory estimates, in bytes. Real providers report their
// own footprint via EstimatedBytes when they implement it; these are the
// fallback for providers that don't (static/hash-based embedders).
const (
	// DefaultMemoryBudgetBytes caps how much estimated embedder memory is
	// allowed to stay resident at once before the oldest model is evicted.
	DefaultMemoryBudgetBytes = 4 * 1024 * 1024 * 1024 // 4 GiB

	// defaultModelFootprintBytes is used when an embedder can't report its
	// own size (e.g. StaticEmbedder768, which never loads external weights).
	defaultModelFootprintBytes = 64 * 1024 * 1024
)

// sizedEmbedder is implemented by embedders that know their own resident
// memory footprint. Providers that don't implement it fall back to
// defaultModelFootprintBytes.
type sizedEmbedder interface {
	EstimatedBytes() int64
}

// MemoryManager tracks the estimated resident memory of loaded embedders
// and evicts the least-recently-used one once the configured budget is
// exceeded. Providers already serialize loading through a single FileLock
// (lock.go); this generalizes that "one model at a time" assumption into
// an accounted multi-model cache, using the same hashicorp/golang-lru
// pattern as the query cache (cached.go) and classifier cache, but sized
// in bytes rather than entry count via a manual eviction callback.
type MemoryManager struct {
	mu     sync.Mutex
	budget int64
	used   int64
	cache  *lru.Cache[string, *managedModel]
}

type managedModel struct {
	embedder Embedder
	bytes    int64
}

// MemoryStatus reports the manager's current accounting.
type MemoryStatus struct {
	BudgetBytes int64
	UsedBytes   int64
	LoadedCount int
	Loaded      []string
}

// NewMemoryManager creates a manager with the given byte budget. A budget
// of 0 uses DefaultMemoryBudgetBytes.
func NewMemoryManager(budgetBytes int64) *MemoryManager {
	if budgetBytes <= 0 {
		budgetBytes = DefaultMemoryBudgetBytes
	}
	m := &MemoryManager{budget: budgetBytes}

	// Unbounded entry count: eviction is driven by the OnEvict callback
	// reacting to m.used crossing the budget, not by LRU slot count.
	cache, _ := lru.NewWithEvict[string, *managedModel](1<<20, func(_ string, v *managedModel) {
		m.used -= v.bytes
		_ = v.embedder.Close()
	})
	m.cache = cache
	return m
}

// Acquire registers an embedder as loaded under modelKey, evicting older
// entries until the running total fits the budget. If modelKey is already
// loaded, it is returned directly (and promoted to most-recently-used).
func (m *MemoryManager) Acquire(modelKey string, embedder Embedder) Embedder {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.cache.Get(modelKey); ok {
		return existing.embedder
	}

	size := defaultModelFootprintBytes
	if sized, ok := embedder.(sizedEmbedder); ok {
		if b := sized.EstimatedBytes(); b > 0 {
			size = int(b)
		}
	}

	for m.used+int64(size) > m.budget && m.cache.Len() > 0 {
		m.cache.RemoveOldest()
	}

	m.cache.Add(modelKey, &managedModel{embedder: embedder, bytes: int64(size)})
	m.used += int64(size)
	return embedder
}

// Release evicts modelKey immediately, closing the underlying embedder.
func (m *MemoryManager) Release(modelKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(modelKey)
}

// Status reports the manager's current memory accounting.
func (m *MemoryManager) Status() MemoryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.cache.Keys()
	return MemoryStatus{
		BudgetBytes: m.budget,
		UsedBytes:   m.used,
		LoadedCount: len(keys),
		Loaded:      keys,
	}
}

// Close evicts and closes every loaded embedder.
func (m *MemoryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
}
