// Package rank orchestrates the hybrid retrieval-ranking pipeline:
// BM25 -> intent classification -> score fusion -> external relevance
// ranking -> learning-to-rank cascade -> MMR diversity selection.
package rank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/domain"
	"github.com/kailas-cloud/rankdex/internal/metrics"
	"github.com/kailas-cloud/rankdex/internal/usecase/cascade"
	"github.com/kailas-cloud/rankdex/internal/usecase/diversity"
	"github.com/kailas-cloud/rankdex/internal/usecase/intent"
	"github.com/kailas-cloud/rankdex/internal/usecase/keyword"
)

// Options holds the pool/output sizes of the diversity stage.
type Options struct {
	PoolSize   int
	OutputSize int
}

// Service runs the ranking pipeline. Each query is processed by one
// goroutine end to end; all per-query state (corpus statistics, document
// records, intent) lives on the stack of Rank. The cascade model cache is
// the only cross-query shared mutable resource and is guarded inside the
// model repository.
type Service struct {
	classifier intent.Strategy
	keyword    *keyword.Scorer
	relevance  RelevanceRanker
	cascade    *cascade.Ranker
	diversity  *diversity.Selector
	opts       Options
	logger     *zap.Logger
}

// New creates a ranking pipeline service.
func New(
	classifier intent.Strategy,
	kw *keyword.Scorer,
	relevance RelevanceRanker,
	casc *cascade.Ranker,
	div *diversity.Selector,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 50
	}
	if opts.OutputSize <= 0 {
		opts.OutputSize = 10
	}
	return &Service{
		classifier: classifier,
		keyword:    kw,
		relevance:  relevance,
		cascade:    casc,
		diversity:  div,
		opts:       opts,
		logger:     logger,
	}
}

// Rank turns a raw query plus vector-retrieved candidates into the final
// ordered, diversified result list. Empty query or empty candidate set
// short-circuits to an empty result without error. A candidate without its
// URL identity is a contract violation and fails the query.
func (s *Service) Rank(
	ctx context.Context,
	query string,
	docs []*domain.Document,
	embeddings map[string][]float32,
) (Result, error) {
	queryID := uuid.NewString()

	if query == "" || len(docs) == 0 {
		metrics.QueriesTotal.WithLabelValues("empty").Inc()
		return Result{QueryID: queryID, Cascade: cascade.Metadata{
			Mode:           cascade.ModeDisabled,
			FeatureVersion: cascade.FeatureVersion,
		}}, nil
	}
	for _, d := range docs {
		if !d.HasIdentity() {
			metrics.QueriesTotal.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("candidate at retrieval position %d: %w",
				d.RetrievalPosition, domain.ErrMissingIdentity)
		}
	}

	// Keyword scoring over the query-scoped corpus.
	start := time.Now()
	corpus := s.keyword.ScoreAll(query, docs)
	metrics.StageDuration.WithLabelValues("bm25").Observe(time.Since(start).Seconds())

	// Intent classification and score fusion.
	it := s.classifier.Classify(query)
	fuseScores(docs, it)

	s.logger.Debug("Retrieval scoring complete",
		zap.String("query_id", queryID),
		zap.Int("candidates", len(docs)),
		zap.Int("corpus_terms", len(corpus.DocFrequency)),
		zap.String("fusion_intent", string(it.Fusion())),
		zap.String("diversity_intent", string(it.Diversity())),
		zap.Float64("alpha", it.Alpha()),
		zap.Float64("beta", it.Beta()),
		zap.Float64("lambda", it.Lambda()),
	)

	// External relevance ranking: the pipeline's only suspension point.
	start = time.Now()
	judged, err := s.relevance.Rank(ctx, query, candidates(docs))
	metrics.StageDuration.WithLabelValues("relevance").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("relevance ranking: %w", err)
	}
	if err := ctx.Err(); err != nil {
		// Cancelled mid-flight: no partial cascade/MMR output.
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("query aborted: %w", err)
	}
	applyRelevance(docs, judged)

	// Stable sort by relevance score; ties keep retrieval order.
	ranked := make([]*domain.Document, len(docs))
	copy(ranked, docs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].LLMScore > ranked[j].LLMScore
	})

	// Learning-to-rank cascade.
	start = time.Now()
	ranked, cascMeta := s.cascade.Rerank(queryID, query, it, ranked)
	metrics.StageDuration.WithLabelValues("cascade").Observe(time.Since(start).Seconds())

	// Diversity selection over the top of the ranked pool.
	pool := ranked
	if len(pool) > s.opts.PoolSize {
		pool = pool[:s.opts.PoolSize]
	}
	start = time.Now()
	selected := s.diversity.Select(
		pool, relevanceSignals(pool, cascMeta.Mode), embeddings, it.Lambda(), s.opts.OutputSize,
	)
	metrics.StageDuration.WithLabelValues("mmr").Observe(time.Since(start).Seconds())

	out := make([]*RankedDocument, len(selected))
	for i, d := range selected {
		d.Sent = true
		out[i] = emit(d)
	}

	metrics.QueriesTotal.WithLabelValues("success").Inc()
	s.logger.Info("Query ranked",
		zap.String("query_id", queryID),
		zap.Int("candidates", len(docs)),
		zap.Int("results", len(out)),
		zap.String("cascade_mode", string(cascMeta.Mode)),
	)

	return Result{
		QueryID:   queryID,
		Intent:    it,
		Documents: out,
		Cascade:   cascMeta,
	}, nil
}

// candidates projects document records into the relevance-ranker view.
func candidates(docs []*domain.Document) []Candidate {
	out := make([]Candidate, len(docs))
	for i, d := range docs {
		out[i] = Candidate{URL: d.URL, Title: d.Title, Description: d.Description}
	}
	return out
}

// applyRelevance matches judgments back to records by URL. Documents the
// ranker skipped keep the 0.0 default; judgments for unknown URLs are
// dropped.
func applyRelevance(docs []*domain.Document, judged []Relevance) {
	byURL := make(map[string]*domain.Document, len(docs))
	for _, d := range docs {
		byURL[d.URL] = d
	}
	for _, j := range judged {
		if d, ok := byURL[j.URL]; ok {
			d.LLMScore = j.Score
			d.LLMSnippet = j.Snippet
		}
	}
}

// relevanceSignals picks the per-document relevance the diversity stage
// ranks against: the cascade score when the cascade actively re-ordered,
// the relevance-ranker score otherwise.
func relevanceSignals(pool []*domain.Document, mode cascade.Mode) []float64 {
	out := make([]float64, len(pool))
	for i, d := range pool {
		if mode == cascade.ModeActive && d.CascadeScore != nil {
			out[i] = *d.CascadeScore
		} else {
			out[i] = d.LLMScore
		}
	}
	return out
}

func emit(d *domain.Document) *RankedDocument {
	return &RankedDocument{
		URL:                 d.URL,
		Title:               d.Title,
		Description:         d.Description,
		PublishedDate:       d.PublishedDate,
		Author:              d.Author,
		VectorScore:         d.VectorScore,
		BM25Score:           d.BM25Score,
		FinalRetrievalScore: d.FinalRetrievalScore,
		RetrievalPosition:   d.RetrievalPosition,
		LLMScore:            d.LLMScore,
		LLMSnippet:          d.LLMSnippet,
		CascadeScore:        d.CascadeScore,
		CascadeConfidence:   d.CascadeConfidence,
		DiversityScore:      d.DiversityScore,
	}
}
