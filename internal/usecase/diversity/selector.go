// Package diversity implements Maximal Marginal Relevance re-ranking
// (Carbonell & Goldstein 1998): greedy selection trading relevance against
// similarity to already-selected documents.
package diversity

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/domain"
	"github.com/kailas-cloud/rankdex/internal/domain/vector"
	"github.com/kailas-cloud/rankdex/internal/metrics"
)

// Selector picks a diversified ordered subset from a relevance-ordered
// candidate pool. Stateless, safe for concurrent use.
type Selector struct {
	logger *zap.Logger
}

// NewSelector creates a diversity selector.
func NewSelector(logger *zap.Logger) *Selector {
	return &Selector{logger: logger}
}

// Select returns up to outputSize documents from the pool, greedily
// maximizing lambda*relevance - (1-lambda)*maxSimilarity at each step.
//
// The pool must already be in relevance order; relevances carries the
// matching per-document relevance signal (cascade score when active,
// relevance-ranker score otherwise). Ties go to the earlier (higher
// upstream rank) candidate. Documents without an embedding are treated as
// similar to nothing: they are never excluded and never crash the loop.
// Each selected document records its diversity score
// (1 - max similarity to the previously selected set).
func (s *Selector) Select(
	pool []*domain.Document,
	relevances []float64,
	embeddings map[string][]float32,
	lambda float64,
	outputSize int,
) []*domain.Document {
	if len(pool) == 0 || outputSize <= 0 {
		return nil
	}
	k := min(outputSize, len(pool))

	rel := normalize(relevances)

	selected := make([]*domain.Document, 0, k)
	picked := make([]bool, len(pool))

	for len(selected) < k {
		bestIdx := -1
		bestMMR := 0.0
		bestSim := 0.0

		for i, d := range pool {
			if picked[i] {
				continue
			}
			maxSim := s.maxSimilarity(d, selected, embeddings)
			mmr := lambda*rel[i] - (1-lambda)*maxSim
			if bestIdx == -1 || mmr > bestMMR {
				bestIdx, bestMMR, bestSim = i, mmr, maxSim
			}
		}

		d := pool[bestIdx]
		picked[bestIdx] = true
		div := 1 - bestSim
		d.DiversityScore = &div
		selected = append(selected, d)
	}

	s.observeReduction(pool[:k], selected, embeddings)
	return selected
}

// maxSimilarity is the highest cosine similarity between a candidate and
// any already-selected document; 0 for the first selection.
func (s *Selector) maxSimilarity(
	d *domain.Document, selected []*domain.Document, embeddings map[string][]float32,
) float64 {
	emb, ok := embeddings[d.URL]
	if !ok || len(emb) == 0 {
		// Degrades to pure relevance ordering for this item.
		s.logger.Debug("No embedding for document, assuming zero similarity",
			zap.String("url", d.URL))
		return 0
	}

	maxSim := 0.0
	for _, sel := range selected {
		if sim := vector.Cosine(emb, embeddings[sel.URL]); sim > maxSim {
			maxSim = sim
		}
	}
	return maxSim
}

// observeReduction exports the diversity improvement: average pairwise
// similarity of the pure-relevance top-k minus that of the MMR selection.
func (s *Selector) observeReduction(
	relevanceTop, selected []*domain.Document, embeddings map[string][]float32,
) {
	if len(selected) < 2 {
		return
	}
	before := averagePairwiseSimilarity(relevanceTop, embeddings)
	after := averagePairwiseSimilarity(selected, embeddings)
	metrics.MMRSimilarityReduction.Observe(before - after)

	s.logger.Debug("MMR diversity improvement",
		zap.Float64("avg_similarity_before", before),
		zap.Float64("avg_similarity_after", after),
		zap.Float64("reduction", before-after),
	)
}

func averagePairwiseSimilarity(docs []*domain.Document, embeddings map[string][]float32) float64 {
	var sum float64
	pairs := 0
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			sum += vector.Cosine(embeddings[docs[i].URL], embeddings[docs[j].URL])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

// normalize maps relevance scores to [0,1] so they are commensurate with
// cosine similarity in the MMR formula. A flat score distribution maps to
// all-ones, preserving upstream order through the tie-break.
func normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, v := range scores {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range scores {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
