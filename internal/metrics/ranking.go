package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ranking Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankdex",
			Name:      "queries_total",
			Help:      "Total number of ranking queries processed",
		},
		[]string{"status"}, // "success" / "empty" / "error"
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rankdex",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage pipeline duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.025, 0.1, 0.5, 2.5, 10},
		},
		[]string{"stage"}, // "bm25" / "relevance" / "cascade" / "mmr"
	)

	RelevanceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankdex",
			Name:      "relevance_requests_total",
			Help:      "Total relevance-ranker provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	CascadePredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankdex",
			Name:      "cascade_predictions_total",
			Help:      "Cascade predictions by mode and confidence band",
		},
		[]string{"mode", "band"}, // band: "high" / "low"
	)

	CascadeModelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankdex",
			Name:      "cascade_model_loads_total",
			Help:      "Cascade model load attempts",
		},
		[]string{"status"}, // "loaded" / "cached" / "failed"
	)

	MMRSimilarityReduction = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rankdex",
			Name:      "mmr_similarity_reduction",
			Help:      "Average pairwise similarity reduction achieved by MMR",
			Buckets:   []float64{0, 0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8},
		},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankdex",
			Name:      "result_cache_total",
			Help:      "Ranked-result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var rankingMetricsRegistered bool

// RegisterRankingMetrics registers Prometheus ranking metrics. Must be called once from main.
func RegisterRankingMetrics() {
	if rankingMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(RelevanceRequestsTotal)
	prometheus.MustRegister(CascadePredictionsTotal)
	prometheus.MustRegister(CascadeModelLoadsTotal)
	prometheus.MustRegister(MMRSimilarityReduction)
	prometheus.MustRegister(ResultCacheTotal)
	rankingMetricsRegistered = true
}
