package model

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/domain"
)

const testFeatureCount = 28

// writeModel writes a minimal valid model JSON to a temp file.
func writeModel(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func validModelJSON() string {
	// One stump per class of the split: feature 0 < 10 goes left.
	return fmt.Sprintf(`{
		"model_version": "test-1",
		"feature_version": 3,
		"num_features": %d,
		"base_score": 0.0,
		"trees": [
			{"nodes": [
				{"feature": 0, "threshold": 10, "left": 1, "right": 2, "default_left": true},
				{"leaf": true, "value": -2.0},
				{"leaf": true, "value": 2.0}
			]}
		]
	}`, testFeatureCount)
}

func TestLoad_Valid(t *testing.T) {
	ResetCache()
	path := writeModel(t, validModelJSON())

	m, err := Load(path, 3, testFeatureCount, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Version != "test-1" {
		t.Errorf("Version = %q, want test-1", m.Version)
	}
	if len(m.Trees) != 1 {
		t.Errorf("got %d trees, want 1", len(m.Trees))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	ResetCache()
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), 3, testFeatureCount, zap.NewNop())
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	ResetCache()
	path := writeModel(t, `{"trees": [`)

	_, err := Load(path, 3, testFeatureCount, zap.NewNop())
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestLoad_FeatureVersionMismatch(t *testing.T) {
	ResetCache()
	path := writeModel(t, validModelJSON())

	_, err := Load(path, 2, testFeatureCount, zap.NewNop())
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable for version mismatch", err)
	}
}

func TestLoad_FeatureCountMismatch(t *testing.T) {
	ResetCache()
	path := writeModel(t, validModelJSON())

	_, err := Load(path, 3, testFeatureCount+1, zap.NewNop())
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable for dimension mismatch", err)
	}
}

func TestLoad_CachesFailure(t *testing.T) {
	ResetCache()
	path := filepath.Join(t.TempDir(), "model.json")

	_, err1 := Load(path, 3, testFeatureCount, zap.NewNop())
	if err1 == nil {
		t.Fatal("expected load failure")
	}

	// Creating the file afterward must not resurrect the path: the failure
	// is terminal for the process.
	if err := os.WriteFile(path, []byte(validModelJSON()), 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	_, err2 := Load(path, 3, testFeatureCount, zap.NewNop())
	if err2 == nil {
		t.Error("expected cached failure, got success")
	}
}

func TestLoad_ConcurrentSingleRead(t *testing.T) {
	ResetCache()
	path := writeModel(t, validModelJSON())

	var wg sync.WaitGroup
	models := make([]*Model, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := Load(path, 3, testFeatureCount, zap.NewNop())
			if err != nil {
				t.Errorf("goroutine %d: %v", i, err)
				return
			}
			models[i] = m
		}(i)
	}
	wg.Wait()

	for i := 1; i < 16; i++ {
		if models[i] != models[0] {
			t.Fatalf("goroutine %d got a different model instance", i)
		}
	}
}

func TestPredict_SplitsAndSigmoid(t *testing.T) {
	ResetCache()
	path := writeModel(t, validModelJSON())
	m, err := Load(path, 3, testFeatureCount, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	low := make([]float64, testFeatureCount)
	low[0] = 5 // < threshold, leaf value -2
	high := make([]float64, testFeatureCount)
	high[0] = 50 // >= threshold, leaf value +2

	lowScore, lowConf := m.Predict(low)
	highScore, highConf := m.Predict(high)

	if want := 1 / (1 + math.Exp(2)); math.Abs(lowScore-want) > 1e-9 {
		t.Errorf("low score = %g, want %g", lowScore, want)
	}
	if want := 1 / (1 + math.Exp(-2)); math.Abs(highScore-want) > 1e-9 {
		t.Errorf("high score = %g, want %g", highScore, want)
	}
	// Both sit equally far from 0.5, so confidences match.
	if math.Abs(lowConf-highConf) > 1e-9 {
		t.Errorf("confidences differ: %g vs %g", lowConf, highConf)
	}
	if lowConf <= 0 || lowConf >= 1 {
		t.Errorf("confidence = %g, want (0,1)", lowConf)
	}
}

func TestPredict_NaNFollowsDefaultDirection(t *testing.T) {
	ResetCache()
	path := writeModel(t, validModelJSON())
	m, err := Load(path, 3, testFeatureCount, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	features := make([]float64, testFeatureCount)
	features[0] = math.NaN()

	score, _ := m.Predict(features)
	// default_left is true: NaN routes to the -2 leaf.
	if want := 1 / (1 + math.Exp(2)); math.Abs(score-want) > 1e-9 {
		t.Errorf("NaN score = %g, want %g (default-left leaf)", score, want)
	}
}

func TestPredict_MalformedTreeBailsOut(t *testing.T) {
	// A node pointing at itself must not loop forever.
	m := &Model{
		BaseScore: 1.0,
		Trees: []tree{{Nodes: []node{
			{Feature: 0, Threshold: 10, Left: 0, Right: 0},
		}}},
	}

	score, _ := m.Predict(make([]float64, testFeatureCount))
	if want := sigmoid(1.0); math.Abs(score-want) > 1e-9 {
		t.Errorf("score = %g, want %g (tree contributes 0)", score, want)
	}
}
