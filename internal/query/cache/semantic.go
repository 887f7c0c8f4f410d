package cache

import (
	"context"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// SemanticIndexConfig configures the optional embedding-similarity
// cache layer.
type SemanticIndexConfig struct {
	// ExactThreshold is the "exact-semantic" similarity bar (default 0.95).
	ExactThreshold float64
	// NearThreshold is the "near" similarity bar (default 0.85).
	NearThreshold float64
	// ANNThreshold is the entry count above which the index switches
	// from exact linear scan to the HNSW graph, per spec.md §9's
	// "exact linear scan is acceptable when cache_max_entries is
	// small; an ANN index otherwise".
	ANNThreshold int
}

// DefaultSemanticIndexConfig returns the thresholds spec.md §4.2/§9
// recommends.
func DefaultSemanticIndexConfig() SemanticIndexConfig {
	return SemanticIndexConfig{ExactThreshold: 0.95, NearThreshold: 0.85, ANNThreshold: 500}
}

// semanticIndex stores per-entry embeddings for cosine-similarity cache
// lookup, grounded on Aman-CERP-amanmcp's HNSWStore (id<->uint64
// mapping, cosine distance, lazy deletion) for the ANN path, with a
// plain linear scan below ANNThreshold as spec.md §9 allows.
type semanticIndex struct {
	mu     sync.RWMutex
	cfg    SemanticIndexConfig
	graph  *hnsw.Graph[uint64]
	idMap  map[string]uint64
	keyMap map[uint64]string
	nextKey uint64

	// linear is used in place of graph while len(linear) < ANNThreshold.
	linear map[string][]float32
}

func newSemanticIndex(cfg SemanticIndexConfig) *semanticIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	return &semanticIndex{
		cfg:    cfg,
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		linear: make(map[string][]float32),
	}
}

func (s *semanticIndex) add(key string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.linear[key] = vector

	if existing, ok := s.idMap[key]; ok {
		delete(s.keyMap, existing)
		delete(s.idMap, key)
	}
	nodeKey := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(nodeKey, vector))
	s.idMap[key] = nodeKey
	s.keyMap[nodeKey] = key
}

func (s *semanticIndex) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.linear, key)
	if existing, ok := s.idMap[key]; ok {
		delete(s.keyMap, existing)
		delete(s.idMap, key)
	}
}

// nearest returns the stored key with the highest cosine similarity to
// vector, and that similarity, or ok=false if the index is empty.
func (s *semanticIndex) nearest(ctx context.Context, vector []float32) (string, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.linear) == 0 {
		return "", 0, false
	}

	if len(s.linear) < s.cfg.ANNThreshold {
		return s.linearNearest(vector)
	}

	nodes := s.graph.Search(vector, 1)
	if len(nodes) == 0 {
		return s.linearNearest(vector)
	}
	key, ok := s.keyMap[nodes[0].Key]
	if !ok {
		return s.linearNearest(vector)
	}
	sim := cosineSimilarity(vector, s.linear[key])
	return key, sim, true
}

func (s *semanticIndex) linearNearest(vector []float32) (string, float64, bool) {
	bestKey := ""
	bestSim := -1.0
	for key, vec := range s.linear {
		sim := cosineSimilarity(vector, vec)
		if sim > bestSim {
			bestSim = sim
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", 0, false
	}
	return bestKey, bestSim, true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
