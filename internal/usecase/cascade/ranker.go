// Package cascade implements the learning-to-rank shadow/active re-ranking
// stage with graceful degradation.
package cascade

import (
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/domain"
	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
	"github.com/kailas-cloud/rankdex/internal/metrics"
)

// Mode is the cascade operating mode.
type Mode string

// Cascade modes.
const (
	// ModeDisabled passes results through untouched.
	ModeDisabled Mode = "disabled"
	// ModeShadow computes and logs predictions without altering the ranking.
	ModeShadow Mode = "shadow"
	// ModeActive re-orders by cascade score, confidence-gated per document.
	ModeActive Mode = "active"
)

// Predictor scores one feature vector. Implemented by repository/model.
type Predictor interface {
	Predict(features []float64) (score, confidence float64)
}

// LoadFunc resolves the predictor for a model path. Implementations cache
// process-wide and return a stable error once a path has failed to load.
type LoadFunc func(path string, featureVersion, numFeatures int) (Predictor, error)

// Metadata is the auxiliary audit object emitted alongside every cascade
// run, including shadow mode.
type Metadata struct {
	Mode                Mode    `json:"mode"`
	ModelPath           string  `json:"model_path,omitempty"`
	FeatureVersion      int     `json:"feature_version"`
	AverageConfidence   float64 `json:"average_confidence"`
	HighConfidenceCount int     `json:"high_confidence_count"`
	LowConfidenceCount  int     `json:"low_confidence_count"`
}

// Config holds cascade settings.
type Config struct {
	Enabled             bool
	Mode                Mode
	ModelPath           string
	ConfidenceThreshold float64
}

// Ranker runs the cascade stage. Stateless apart from the process-wide
// model cache behind LoadFunc; safe for concurrent use.
type Ranker struct {
	cfg       Config
	extractor *FeatureExtractor
	load      LoadFunc
	logger    *zap.Logger
}

// NewRanker creates a cascade ranker.
func NewRanker(cfg Config, extractor *FeatureExtractor, load LoadFunc, logger *zap.Logger) *Ranker {
	if extractor == nil {
		extractor = NewFeatureExtractor()
	}
	return &Ranker{cfg: cfg, extractor: extractor, load: load, logger: logger}
}

// Rerank applies the configured cascade mode to docs, which arrive in
// post-relevance order. The returned slice is the stage output order; docs
// themselves gain CascadeScore and CascadeConfidence when predictions ran.
// Rerank never fails: model-unavailable conditions degrade to pass-through.
func (r *Ranker) Rerank(
	queryID, query string, it domint.Intent, docs []*domain.Document,
) ([]*domain.Document, Metadata) {
	meta := Metadata{Mode: r.effectiveMode(), FeatureVersion: FeatureVersion}
	if meta.Mode == ModeDisabled || len(docs) == 0 {
		meta.Mode = ModeDisabled
		return docs, meta
	}
	meta.ModelPath = r.cfg.ModelPath

	predictor, err := r.load(r.cfg.ModelPath, FeatureVersion, FeatureCount)
	if err != nil {
		// Already logged once per process by the loader. Silent per-query
		// fallback to the upstream relevance order.
		meta.Mode = ModeDisabled
		return docs, meta
	}

	features := r.extractor.Extract(query, it, docs)

	var confSum float64
	for i, d := range docs {
		score, conf := predictor.Predict(features[i])
		s, c := score, conf
		d.CascadeScore = &s
		d.CascadeConfidence = &c

		confSum += conf
		band := "high"
		if conf < r.cfg.ConfidenceThreshold {
			band = "low"
			meta.LowConfidenceCount++
		} else {
			meta.HighConfidenceCount++
		}
		metrics.CascadePredictionsTotal.WithLabelValues(string(meta.Mode), band).Inc()
	}
	meta.AverageConfidence = confSum / float64(len(docs))

	if meta.Mode == ModeShadow {
		r.logger.Info("Cascade shadow predictions",
			zap.String("query_id", queryID),
			zap.Int("documents", len(docs)),
			zap.Float64("average_confidence", meta.AverageConfidence),
			zap.Int("high_confidence", meta.HighConfidenceCount),
			zap.Int("low_confidence", meta.LowConfidenceCount),
		)
		for i, d := range docs {
			r.logger.Debug("Cascade shadow prediction",
				zap.String("query_id", queryID),
				zap.String("url", d.URL),
				zap.Int("relevance_rank", i),
				zap.Float64("cascade_score", *d.CascadeScore),
				zap.Float64("cascade_confidence", *d.CascadeConfidence),
			)
		}
		return docs, meta
	}

	return r.gatedReorder(docs), meta
}

// effectiveMode folds the enabled flag into the mode.
func (r *Ranker) effectiveMode() Mode {
	if !r.cfg.Enabled {
		return ModeDisabled
	}
	switch r.cfg.Mode {
	case ModeShadow, ModeActive:
		return r.cfg.Mode
	default:
		return ModeDisabled
	}
}

// gatedReorder re-sorts high-confidence documents by cascade score while
// low-confidence documents keep their upstream slots. The upstream order is
// the tie-breaker for equal cascade scores.
func (r *Ranker) gatedReorder(docs []*domain.Document) []*domain.Document {
	out := make([]*domain.Document, len(docs))
	var high []int
	for i, d := range docs {
		if *d.CascadeConfidence >= r.cfg.ConfidenceThreshold {
			high = append(high, i)
		} else {
			out[i] = d
		}
	}

	sort.SliceStable(high, func(a, b int) bool {
		return *docs[high[a]].CascadeScore > *docs[high[b]].CascadeScore
	})

	j := 0
	for i := range out {
		if out[i] == nil {
			out[i] = docs[high[j]]
			j++
		}
	}
	return out
}
