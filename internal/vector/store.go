// Package vector wraps github.com/coder/hnsw as the dense-retrieval half
// of the hybrid search engine, with payload-filtered search (tag and path
// filters applied as a post-filter pass over the HNSW candidate list).
package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// Result is a single scored hit from a vector search.
type Result struct {
	ID       string
	Distance float32
	Score    float32
}

// Config configures the HNSW graph.
type Config struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultConfig returns the standard HNSW parameters (M=16,
// EfConstruction=100) for the given dimension.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 100,
		EfSearch:       64,
	}
}

// FilterFunc decides whether a candidate ID passes a search's payload
// filter (e.g. tag membership, path prefix). Filtering happens after the
// ANN search returns candidates, not inside the graph traversal.
type FilterFunc func(id string) bool

// filterOverfetch multiplies k when a filter is supplied, since filtering
// shrinks the candidate set and a plain top-k search could return fewer
// than k matches even though more exist in the graph.
const filterOverfetch = 4

// Store is a persistent HNSW vector index with string IDs.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

type persistedMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  Config
}

// ErrDimensionMismatch indicates a vector's width doesn't match the store's
// configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'neuralfsd --reindex')", e.Expected, e.Got)
}

// New creates a new HNSW-backed vector store.
func New(cfg Config) (*Store, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}, nil
}

// Add inserts vectors with their IDs, replacing any existing vector sharing
// an ID via lazy deletion (coder/hnsw cannot safely delete the last node in
// the graph, so superseded nodes are orphaned rather than removed,
// cleaned up later by compaction).
func (s *Store) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return errors.ValidationError(fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("vector store is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest neighbors to query, optionally restricted to
// IDs passing filter.
func (s *Store) Search(ctx context.Context, query []float32, k int, filter FilterFunc) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.InternalError("vector store is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*Result{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(normalized)
	}

	fetchK := k
	if filter != nil {
		fetchK = k * filterOverfetch
	}

	nodes := s.graph.Search(normalized, fetchK)

	results := make([]*Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		if filter != nil && !filter(id) {
			continue
		}

		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &Result{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
		if len(results) >= k {
			break
		}
	}

	return results, nil
}

// Delete removes vectors by ID via lazy deletion.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("vector store is closed", nil)
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// AllIDs returns every live vector ID, for consistency checks against the
// metadata store and BM25 index.
func (s *Store) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether id has a live vector.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Stats reports orphan counts used by the background compactor
// (config.CompactionConfig) to decide when rebuilding the graph is
// worthwhile.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	valid := len(s.idMap)
	nodes := s.graph.Len()
	return Stats{ValidIDs: valid, GraphNodes: nodes, Orphans: nodes - valid}
}

// Save persists the graph and ID mappings to path (+ path+".meta"), using
// a temp-file-then-rename for atomicity.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.InternalError("vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.IOError("failed to create vector store directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.IOError("failed to create vector index file", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return errors.IOError("failed to export vector graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.IOError("failed to close vector index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.IOError("failed to rename vector index file", err)
	}

	return s.saveMeta(path + ".meta")
}

func (s *Store) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.IOError("failed to create vector metadata file", err)
	}

	meta := persistedMeta{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp metadata file during cleanup", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmpPath)
		return errors.IOError("failed to encode vector metadata", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.IOError("failed to close vector metadata file", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mappings from path.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.InternalError("vector store is closed", nil)
	}

	if err := s.loadMeta(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.IOError("failed to open vector index file", err)
	}
	defer func() { _ = file.Close() }()

	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return errors.New(errors.ErrCodeCorruptIndex, "failed to import vector graph", err)
	}
	return nil
}

func (s *Store) loadMeta(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.IOError("failed to open vector metadata file", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close vector metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta persistedMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return errors.New(errors.ErrCodeCorruptIndex, "failed to decode vector metadata", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the store. The HNSW graph has no explicit cleanup, so this
// only flips the closed flag guarding subsequent calls.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadDimensions reads the embedding dimension recorded in an existing
// store's metadata file, without loading the full graph. Returns 0 if no
// metadata exists yet.
func ReadDimensions(vectorPath string) (int, error) {
	file, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.IOError("failed to open vector metadata", err)
	}
	defer func() { _ = file.Close() }()

	var meta persistedMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, errors.New(errors.ErrCodeCorruptIndex, "failed to decode vector metadata", err)
	}
	return meta.Config.Dimensions, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "cos":
		return 1.0 - distance/2.0
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
