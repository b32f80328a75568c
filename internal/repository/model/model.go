// Package model loads and serves the learning-to-rank cascade model.
//
// Models are gradient-boosted regression trees exported to a portable JSON
// format. Loading is lazy and cached process-wide per model path: concurrent
// queries racing to populate the cache take a single mutex around the
// load-if-absent check, so the file is read at most once and no caller ever
// observes a partially-initialized model. A failed load is cached too and
// disables the cascade for that path for the remainder of the process.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/domain"
	"github.com/kailas-cloud/rankdex/internal/metrics"
)

// node is one decision node in a regression tree. Leaves carry Value;
// internal nodes split on Feature < Threshold (left on true).
type node struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	Leaf        bool    `json:"leaf"`
	Value       float64 `json:"value"`
	DefaultLeft bool    `json:"default_left"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// Model is an immutable gradient-boosted-tree scorer. Safe for concurrent
// use without locking once loaded.
type Model struct {
	Version        string  `json:"model_version"`
	FeatureVersion int     `json:"feature_version"`
	NumFeatures    int     `json:"num_features"`
	BaseScore      float64 `json:"base_score"`
	Trees          []tree  `json:"trees"`
}

// Predict returns a relevance score in [0,1] and a confidence in [0,1] for
// one feature vector. Confidence is the distance of the sigmoid output from
// the decision midpoint, scaled to [0,1].
func (m *Model) Predict(features []float64) (score, confidence float64) {
	raw := m.BaseScore
	for i := range m.Trees {
		raw += m.Trees[i].traverse(features)
	}
	score = sigmoid(raw)
	confidence = math.Abs(score-0.5) * 2
	return score, confidence
}

func (t *tree) traverse(features []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	idx := 0
	for {
		n := &t.Nodes[idx]
		if n.Leaf {
			return n.Value
		}
		v := 0.0
		if n.Feature >= 0 && n.Feature < len(features) {
			v = features[n.Feature]
		}
		next := n.Right
		if math.IsNaN(v) {
			if n.DefaultLeft {
				next = n.Left
			}
		} else if v < n.Threshold {
			next = n.Left
		}
		if next <= idx || next >= len(t.Nodes) {
			// Malformed tree; bail out rather than loop.
			return 0
		}
		idx = next
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// validate checks the loaded model against the configured feature contract.
func (m *Model) validate(wantVersion, wantFeatures int) error {
	if m.FeatureVersion != wantVersion {
		return fmt.Errorf("feature version mismatch: model has %d, config wants %d: %w",
			m.FeatureVersion, wantVersion, domain.ErrModelUnavailable)
	}
	if m.NumFeatures != wantFeatures {
		return fmt.Errorf("feature dimension mismatch: model has %d, extractor produces %d: %w",
			m.NumFeatures, wantFeatures, domain.ErrModelUnavailable)
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("model has no trees: %w", domain.ErrModelUnavailable)
	}
	return nil
}

// entry is a resolved cache slot: either a model or a terminal load error.
type entry struct {
	model *Model
	err   error
}

var (
	cacheMu sync.Mutex
	cache   = make(map[string]*entry)
)

// Load returns the cached model for path, loading it on first use. The
// load-if-absent check runs under the cache mutex; reads of an already
// resolved entry are served from the same map without re-reading the file.
// A load failure is logged as a warning once and cached, so the same path
// stays disabled for the process lifetime without per-query noise.
func Load(path string, featureVersion, numFeatures int, logger *zap.Logger) (*Model, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if e, ok := cache[path]; ok {
		if e.err == nil {
			metrics.CascadeModelLoadsTotal.WithLabelValues("cached").Inc()
		}
		return e.model, e.err
	}

	m, err := load(path, featureVersion, numFeatures)
	cache[path] = &entry{model: m, err: err}

	if err != nil {
		metrics.CascadeModelLoadsTotal.WithLabelValues("failed").Inc()
		logger.Warn("Cascade model unavailable, falling back to upstream ranking",
			zap.String("model_path", path),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.CascadeModelLoadsTotal.WithLabelValues("loaded").Inc()
	logger.Info("Cascade model loaded",
		zap.String("model_path", path),
		zap.String("model_version", m.Version),
		zap.Int("feature_version", m.FeatureVersion),
		zap.Int("num_features", m.NumFeatures),
		zap.Int("trees", len(m.Trees)),
	)
	return m, nil
}

func load(path string, featureVersion, numFeatures int) (*Model, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read model file: %w: %w", err, domain.ErrModelUnavailable)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model file: %w: %w", err, domain.ErrModelUnavailable)
	}

	if err := m.validate(featureVersion, numFeatures); err != nil {
		return nil, err
	}
	return &m, nil
}

// ResetCache drops all cached entries. Test helper; production code never
// reloads without an explicit path change.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[string]*entry)
}
