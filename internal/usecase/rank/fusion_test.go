package rank

import (
	"math"
	"testing"

	"github.com/kailas-cloud/rankdex/internal/domain"
	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
)

func intentWith(alpha, beta float64) domint.Intent {
	return domint.New(
		domint.FusionBalanced, domint.DiversityBalanced,
		alpha, beta, 0.7, domint.Signals{},
	)
}

func TestFuseScores_WeightedSum(t *testing.T) {
	docs := []*domain.Document{
		{URL: "a", VectorScore: 0.8, BM25Score: 2.0},
		{URL: "b", VectorScore: 0.1, BM25Score: 0.0},
	}

	fuseScores(docs, intentWith(0.6, 0.4))

	if want := 0.6*0.8 + 0.4*2.0; math.Abs(docs[0].FinalRetrievalScore-want) > 1e-9 {
		t.Errorf("doc a: FinalRetrievalScore = %g, want %g", docs[0].FinalRetrievalScore, want)
	}
	if want := 0.6 * 0.1; math.Abs(docs[1].FinalRetrievalScore-want) > 1e-9 {
		t.Errorf("doc b: FinalRetrievalScore = %g, want %g", docs[1].FinalRetrievalScore, want)
	}
}

func TestFuseScores_WeightsShiftRanking(t *testing.T) {
	mk := func() []*domain.Document {
		return []*domain.Document{
			{URL: "vec", VectorScore: 0.9, BM25Score: 0.5},
			{URL: "kw", VectorScore: 0.2, BM25Score: 3.0},
		}
	}

	// Vector-heavy weights favor the semantic match.
	docs := mk()
	fuseScores(docs, intentWith(0.9, 0.1))
	if docs[0].FinalRetrievalScore <= docs[1].FinalRetrievalScore {
		t.Error("vector-heavy weights should favor the vector match")
	}

	// Keyword-heavy weights favor the exact match.
	docs = mk()
	fuseScores(docs, intentWith(0.1, 0.9))
	if docs[1].FinalRetrievalScore <= docs[0].FinalRetrievalScore {
		t.Error("keyword-heavy weights should favor the BM25 match")
	}
}

func TestFuseScores_PreservesOrder(t *testing.T) {
	docs := []*domain.Document{
		{URL: "low", VectorScore: 0.1},
		{URL: "high", VectorScore: 0.9},
	}

	fuseScores(docs, intentWith(0.6, 0.4))

	if docs[0].URL != "low" || docs[1].URL != "high" {
		t.Error("fuseScores must not reorder documents")
	}
}
