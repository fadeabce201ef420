package memory

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ScoringConfig holds the retrieval weights and decay tunables.
type ScoringConfig struct {
	SemanticWeight   float64 // Default 0.40
	ImportanceWeight float64 // Default 0.25
	RecencyWeight    float64 // Default 0.20
	AccessWeight     float64 // Default 0.15
	BaseHalfLifeDays float64 // Default 30
}

// DefaultScoringConfig returns the built-in ranking weights.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		SemanticWeight:   0.40,
		ImportanceWeight: 0.25,
		RecencyWeight:    0.20,
		AccessWeight:     0.15,
		BaseHalfLifeDays: 30,
	}
}

// Filter narrows retrieval to a speaker, tags or types. Zero value matches
// everything non-archived.
type Filter struct {
	Speaker string
	Tags    []string     // Any-of
	Types   []MemoryType // Any-of
}

func (f Filter) matches(m *Memory) bool {
	if m.Archived {
		return false
	}
	if f.Speaker != "" && !m.OwnedBy(f.Speaker) {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, t := range f.Tags {
			if m.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if m.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Scored pairs a memory with its retrieval score.
type Scored struct {
	Memory *Memory
	Score  float64
}

// Retriever performs semantic retrieval with decay-weighted ranking.
type Retriever struct {
	repo     Repository
	index    VectorIndex
	embedder Embedder
	config   ScoringConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewRetriever creates a retriever.
func NewRetriever(repo Repository, index VectorIndex, embedder Embedder, config ScoringConfig, logger *zap.Logger) *Retriever {
	if config.BaseHalfLifeDays <= 0 {
		config.BaseHalfLifeDays = 30
	}
	return &Retriever{
		repo:     repo,
		index:    index,
		embedder: embedder,
		config:   config,
		logger:   logger.With(zap.String("component", "memory-retriever")),
		now:      time.Now,
	}
}

// SetClock overrides the clock. Tests only.
func (r *Retriever) SetClock(now func() time.Time) { r.now = now }

// Retrieve embeds the query, over-fetches nearest neighbors, re-ranks with
// the decay-weighted score and returns the top k. Access stamping for the
// returned set is best effort: failures are logged, never surfaced.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter Filter) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Over-fetch so that filtering and re-ranking have room to work.
	topN := 4 * k
	if topN < 20 {
		topN = 20
	}
	hits, err := r.index.Search(vec, topN)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	simByID := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		simByID[h.ID] = h.Similarity
	}
	candidates, err := r.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := r.now()
	scored := make([]Scored, 0, len(candidates))
	for _, m := range candidates {
		if !filter.matches(m) {
			continue
		}
		decay := m.DecayFactor(now, r.config.BaseHalfLifeDays)
		score := r.config.SemanticWeight*simByID[m.ID] +
			r.config.ImportanceWeight*m.BaseImportance*m.TypeWeight()*decay +
			r.config.RecencyWeight*decay +
			r.config.AccessWeight*m.AccessBonus()
		scored = append(scored, Scored{Memory: m, Score: score})
	}

	// Ties break by recency, then lexicographic id, for determinism.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Memory.LastAccessed.Equal(scored[j].Memory.LastAccessed) {
			return scored[i].Memory.LastAccessed.After(scored[j].Memory.LastAccessed)
		}
		return scored[i].Memory.ID < scored[j].Memory.ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	if len(scored) > 0 {
		touched := make([]string, len(scored))
		for i, s := range scored {
			touched[i] = s.Memory.ID
		}
		if err := r.repo.TouchAccess(ctx, touched, now); err != nil {
			r.logger.Warn("Access stamping failed", zap.Error(err))
		}
	}

	return scored, nil
}
