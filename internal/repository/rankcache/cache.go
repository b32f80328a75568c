// Package rankcache caches final ranked results in a key-value store.
//
// The cache is a best-effort decorator over the ranking pipeline: store
// failures are logged and the query falls through to a full pipeline run.
// Entries are keyed by a digest of the query plus the candidate URL set, so
// a different candidate pool for the same query text never collides.
package rankcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/db"
	"github.com/kailas-cloud/rankdex/internal/domain"
	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
	"github.com/kailas-cloud/rankdex/internal/usecase/cascade"
	"github.com/kailas-cloud/rankdex/internal/usecase/rank"
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Ranker is the pipeline contract this cache decorates.
type Ranker interface {
	Rank(
		ctx context.Context, query string,
		docs []*domain.Document, embeddings map[string][]float32,
	) (rank.Result, error)
}

// CachedRanker serves previously ranked queries from a key-value store.
type CachedRanker struct {
	inner      Ranker
	store      store
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner Ranker,
	s store,
	keyPrefix string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedRanker {
	return &CachedRanker{
		inner:      inner,
		store:      s,
		keyPrefix:  keyPrefix + "rank_cache:",
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Rank returns a cached result or runs the inner pipeline and caches its
// output. Only successful, non-empty results are cached.
func (c *CachedRanker) Rank(
	ctx context.Context, query string,
	docs []*domain.Document, embeddings map[string][]float32,
) (rank.Result, error) {
	key := c.cacheKey(query, docs)

	if res, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return res, nil
	}
	c.incCache("miss")

	res, err := c.inner.Rank(ctx, query, docs, embeddings)
	if err != nil {
		return rank.Result{}, fmt.Errorf("rank query: %w", err)
	}

	if len(res.Documents) > 0 {
		c.putToCache(ctx, key, res)
	}
	return res, nil
}

func (c *CachedRanker) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey digests the query and the sorted candidate URL set.
func (c *CachedRanker) cacheKey(query string, docs []*domain.Document) string {
	urls := make([]string, len(docs))
	for i, d := range docs {
		urls[i] = d.URL
	}
	sort.Strings(urls)

	h := sha256.New()
	h.Write([]byte(query))
	for _, u := range urls {
		h.Write([]byte{0})
		h.Write([]byte(u))
	}
	return c.keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// cachedResult is the serialized form. Intent is flattened into a snapshot
// because its accessor-only type does not round-trip through JSON.
type cachedResult struct {
	QueryID   string                 `json:"query_id"`
	Intent    cachedIntent           `json:"intent"`
	Documents []*rank.RankedDocument `json:"documents"`
	Cascade   cascade.Metadata       `json:"cascade"`
}

type cachedIntent struct {
	Fusion    string         `json:"fusion"`
	Diversity string         `json:"diversity"`
	Alpha     float64        `json:"alpha"`
	Beta      float64        `json:"beta"`
	Lambda    float64        `json:"lambda"`
	Signals   domint.Signals `json:"signals"`
}

func (c *CachedRanker) getFromCache(ctx context.Context, key string) (rank.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached result", zap.String("key", key), zap.Error(err))
		}
		return rank.Result{}, false
	}
	if len(data) == 0 {
		return rank.Result{}, false
	}

	var cached cachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn("Failed to parse cached result", zap.String("key", key), zap.Error(err))
		return rank.Result{}, false
	}

	return rank.Result{
		QueryID: cached.QueryID,
		Intent: domint.New(
			domint.FusionCategory(cached.Intent.Fusion),
			domint.DiversityCategory(cached.Intent.Diversity),
			cached.Intent.Alpha, cached.Intent.Beta, cached.Intent.Lambda,
			cached.Intent.Signals,
		),
		Documents: cached.Documents,
		Cascade:   cached.Cascade,
	}, true
}

func (c *CachedRanker) putToCache(ctx context.Context, key string, res rank.Result) {
	data, err := json.Marshal(cachedResult{
		QueryID: res.QueryID,
		Intent: cachedIntent{
			Fusion:    string(res.Intent.Fusion()),
			Diversity: string(res.Intent.Diversity()),
			Alpha:     res.Intent.Alpha(),
			Beta:      res.Intent.Beta(),
			Lambda:    res.Intent.Lambda(),
			Signals:   res.Intent.Signals(),
		},
		Documents: res.Documents,
		Cascade:   res.Cascade,
	})
	if err != nil {
		c.logger.Warn("Failed to serialize result", zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache result", zap.String("key", key), zap.Error(err))
	}
}
