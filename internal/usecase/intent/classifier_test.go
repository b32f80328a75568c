package intent

import (
	"math"
	"testing"

	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
)

func TestClassify_ExactMatchQuery(t *testing.T) {
	r := NewRuleBased(Config{})

	// Digits plus a long rune count reach the exact-match threshold.
	it := r.Classify("2024 年度報告")

	if it.Fusion() != domint.FusionExactMatch {
		t.Fatalf("Fusion = %s, want exact-match (signals %+v)", it.Fusion(), it.Signals())
	}
	if it.Alpha() != 0.4 || it.Beta() != 0.6 {
		t.Errorf("weights = (%g, %g), want (0.4, 0.6)", it.Alpha(), it.Beta())
	}
}

func TestClassify_QuotedQuery(t *testing.T) {
	r := NewRuleBased(Config{})

	it := r.Classify(`"error code 0x80070005" windows update failed`)

	if it.Fusion() != domint.FusionExactMatch {
		t.Errorf("Fusion = %s, want exact-match", it.Fusion())
	}
}

func TestClassify_SemanticQuery(t *testing.T) {
	r := NewRuleBased(Config{})

	// Interrogative + concept vocabulary, and no exact anchors.
	it := r.Classify("what is the meaning of hybrid search architecture")

	if it.Fusion() != domint.FusionSemantic {
		t.Fatalf("Fusion = %s, want semantic (signals %+v)", it.Fusion(), it.Signals())
	}
	if it.Alpha() != 0.7 || it.Beta() != 0.3 {
		t.Errorf("weights = (%g, %g), want (0.7, 0.3)", it.Alpha(), it.Beta())
	}
}

func TestClassify_BalancedQuery(t *testing.T) {
	r := NewRuleBased(Config{})

	it := r.Classify("golang http server tutorial series")

	if it.Fusion() != domint.FusionBalanced {
		t.Fatalf("Fusion = %s, want balanced (signals %+v)", it.Fusion(), it.Signals())
	}
	if it.Alpha() != 0.6 || it.Beta() != 0.4 {
		t.Errorf("weights = (%g, %g), want (0.6, 0.4)", it.Alpha(), it.Beta())
	}
}

func TestClassify_ExactWinsOverSemantic(t *testing.T) {
	r := NewRuleBased(Config{})

	// Carries both an interrogative and strong literal anchors.
	it := r.Classify(`how to fix "segmentation fault 11" in gcc 13.2`)

	if it.Fusion() != domint.FusionExactMatch {
		t.Errorf("Fusion = %s, want exact-match when both checklists fire", it.Fusion())
	}
}

func TestClassify_DiversityCategories(t *testing.T) {
	r := NewRuleBased(Config{})

	tests := []struct {
		query  string
		want   domint.DiversityCategory
		lambda float64
	}{
		{"how to configure nginx reverse proxy", domint.DiversitySpecific, 0.8},
		{"best pizza places and popular trends", domint.DiversityExploratory, 0.5},
		{"golang context cancellation", domint.DiversityBalanced, 0.7},
		{"如何設定反向代理伺服器", domint.DiversitySpecific, 0.8},
		{"推薦的熱門旅遊地點", domint.DiversityExploratory, 0.5},
	}
	for _, tt := range tests {
		it := r.Classify(tt.query)
		if it.Diversity() != tt.want {
			t.Errorf("%q: Diversity = %s, want %s (signals %+v)",
				tt.query, it.Diversity(), tt.want, it.Signals())
		}
		if it.Lambda() != tt.lambda {
			t.Errorf("%q: Lambda = %g, want %g", tt.query, it.Lambda(), tt.lambda)
		}
	}
}

func TestClassify_WeightsSumToOne(t *testing.T) {
	r := NewRuleBased(Config{})

	queries := []string{
		"",
		"a",
		"2024 年度報告",
		"what is the meaning of life",
		"best alternatives to kubernetes",
		`"exact phrase" lookup`,
	}
	for _, q := range queries {
		it := r.Classify(q)
		if sum := it.Alpha() + it.Beta(); math.Abs(sum-1) > 1e-9 {
			t.Errorf("%q: alpha+beta = %g, want 1", q, sum)
		}
		if it.Lambda() < 0 || it.Lambda() > 1 {
			t.Errorf("%q: lambda = %g, want [0,1]", q, it.Lambda())
		}
	}
}

func TestClassify_EmptyQuery(t *testing.T) {
	r := NewRuleBased(Config{})

	it := r.Classify("")

	if it.Fusion() != domint.FusionBalanced {
		t.Errorf("Fusion = %s, want balanced for empty query", it.Fusion())
	}
	if it.Diversity() != domint.DiversityBalanced {
		t.Errorf("Diversity = %s, want balanced for empty query", it.Diversity())
	}
}

func TestClassify_Deterministic(t *testing.T) {
	r := NewRuleBased(Config{})

	query := `how to use "context" in 2024 最好的方法`
	first := r.Classify(query)
	for i := 0; i < 10; i++ {
		got := r.Classify(query)
		if got != first {
			t.Fatalf("run %d: classification %+v != %+v", i, got, first)
		}
	}
}

func TestClassify_ConfigOverrides(t *testing.T) {
	r := NewRuleBased(Config{
		AlphaExact:      0.2,
		BetaExact:       0.8,
		SignalThreshold: 1,
	})

	it := r.Classify("release 2024")

	if it.Fusion() != domint.FusionExactMatch {
		t.Fatalf("Fusion = %s, want exact-match at threshold 1", it.Fusion())
	}
	if it.Alpha() != 0.2 || it.Beta() != 0.8 {
		t.Errorf("weights = (%g, %g), want (0.2, 0.8)", it.Alpha(), it.Beta())
	}
}
