package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// IndexHit is one nearest-neighbor candidate.
type IndexHit struct {
	ID         string
	Similarity float64 // Cosine similarity in [-1,1]
}

// VectorIndex is the sidecar embedding store: many readers, single writer
// per id. Full rebuilds happen offline.
type VectorIndex interface {
	Upsert(id string, vec []float32) error
	Remove(id string)
	Search(query []float32, topN int) ([]IndexHit, error)
	Len() int
}

// InMemoryVectorIndex is a brute-force cosine index. Adequate for the
// household-scale memory counts this system holds.
type InMemoryVectorIndex struct {
	mu        sync.RWMutex
	vectors   map[string][]float32
	dimension int
}

// NewInMemoryVectorIndex creates an index enforcing the given dimension.
func NewInMemoryVectorIndex(dimension int) *InMemoryVectorIndex {
	return &InMemoryVectorIndex{
		vectors:   make(map[string][]float32),
		dimension: dimension,
	}
}

// Upsert inserts or replaces the vector for id.
func (x *InMemoryVectorIndex) Upsert(id string, vec []float32) error {
	if len(vec) != x.dimension {
		return apperrors.NewInvariant("vector dimension mismatch")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	stored := make([]float32, len(vec))
	copy(stored, vec)
	x.vectors[id] = stored
	return nil
}

// Remove deletes the vector for id, if present.
func (x *InMemoryVectorIndex) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.vectors, id)
}

// Search returns the topN nearest neighbors by cosine similarity.
func (x *InMemoryVectorIndex) Search(query []float32, topN int) ([]IndexHit, error) {
	if len(query) != x.dimension {
		return nil, apperrors.NewInvariant("query dimension mismatch")
	}

	x.mu.RLock()
	hits := make([]IndexHit, 0, len(x.vectors))
	for id, vec := range x.vectors {
		hits = append(hits, IndexHit{ID: id, Similarity: CosineSimilarity(query, vec)})
	}
	x.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

// Len returns the number of indexed vectors.
func (x *InMemoryVectorIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashEmbedder is a deterministic word-hash embedder. It stands in for the
// real embedding service in tests and when the service is unreachable:
// identical texts land on identical vectors, so retrieval stays exercisable
// offline.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

// Embed folds character hashes of each word into a normalized vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for i, ch := range word {
			idx := (int(ch)*31 + i) % e.dimension
			vec[idx] += 1.0
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

// Dimension returns the configured vector dimension.
func (e *HashEmbedder) Dimension() int { return e.dimension }
