// Package intent implements rule-based query-intent classification.
//
// Two independent additive checklists are scored per query. The first picks
// the fusion weight pair (exact-match vs semantic vs balanced); the second
// picks the MMR lambda (specific vs exploratory vs balanced). The point
// thresholds are heuristic and therefore configuration, not hidden
// constants.
package intent

import (
	"strings"
	"unicode"
	"unicode/utf8"

	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
)

// Config holds the tunable weights and thresholds of the rule-based
// classifier. Zero values are replaced by defaults in NewRuleBased.
type Config struct {
	AlphaDefault  float64
	BetaDefault   float64
	AlphaExact    float64
	BetaExact     float64
	AlphaSemantic float64
	BetaSemantic  float64

	LambdaDefault     float64
	LambdaSpecific    float64
	LambdaExploratory float64

	SignalThreshold  int
	ExactLengthRunes int
	ShortQueryWords  int
}

// Interrogative words signal a semantic/conceptual query (Chinese + English).
var questionWords = []string{
	"什麼", "什么", "為什麼", "为什么", "如何", "怎麼", "怎么",
	"哪裡", "哪里", "哪些", "誰", "谁", "何時", "何时",
	"what", "why", "how", "where", "which", "who", "when",
}

// Abstract/concept vocabulary signals a semantic query.
var conceptWords = []string{
	"meaning", "concept", "idea", "theory", "philosophy", "overview",
	"difference", "explain", "understand",
	"概念", "意義", "意义", "理論", "理论", "原理", "差異", "差异",
}

// Specificity markers favor pure relevance in diversity selection.
var specificMarkers = []string{
	"how to", "如何", "怎麼", "怎么",
	"what is", "什麼是", "什么是",
	"where", "哪裡", "哪里",
	"when", "什麼時候", "什么时候",
}

// Exploratory markers favor novelty in diversity selection.
var exploratoryMarkers = []string{
	"best", "最好", "推薦", "推荐",
	"ideas", "點子", "想法",
	"options", "選項", "选项",
	"alternatives", "替代", "其他",
	"trends", "趨勢", "趋势",
	"popular", "熱門", "热门",
	"methods", "ways", "方法", "方式",
	"recommend",
}

// RuleBased is the default Strategy. Stateless and safe for concurrent use.
type RuleBased struct {
	cfg Config
}

// NewRuleBased creates a rule-based classifier, filling zero config fields
// with the documented defaults.
func NewRuleBased(cfg Config) *RuleBased {
	if cfg.AlphaDefault <= 0 {
		cfg.AlphaDefault = 0.6
	}
	if cfg.BetaDefault <= 0 {
		cfg.BetaDefault = 0.4
	}
	if cfg.AlphaExact <= 0 {
		cfg.AlphaExact = 0.4
	}
	if cfg.BetaExact <= 0 {
		cfg.BetaExact = 0.6
	}
	if cfg.AlphaSemantic <= 0 {
		cfg.AlphaSemantic = 0.7
	}
	if cfg.BetaSemantic <= 0 {
		cfg.BetaSemantic = 0.3
	}
	if cfg.LambdaDefault <= 0 {
		cfg.LambdaDefault = 0.7
	}
	if cfg.LambdaSpecific <= 0 {
		cfg.LambdaSpecific = 0.8
	}
	if cfg.LambdaExploratory <= 0 {
		cfg.LambdaExploratory = 0.5
	}
	if cfg.SignalThreshold <= 0 {
		cfg.SignalThreshold = 2
	}
	if cfg.ExactLengthRunes <= 0 {
		cfg.ExactLengthRunes = 8
	}
	if cfg.ShortQueryWords <= 0 {
		cfg.ShortQueryWords = 3
	}
	return &RuleBased{cfg: cfg}
}

var _ Strategy = (*RuleBased)(nil)

// Classify derives fusion weights and the diversity lambda for a query.
func (r *RuleBased) Classify(query string) domint.Intent {
	lower := strings.ToLower(query)
	words := strings.Fields(query)

	signals := domint.Signals{
		ExactMatch:  r.exactSignals(query, words),
		Semantic:    r.semanticSignals(lower, words),
		Specific:    countMarkers(lower, specificMarkers),
		Exploratory: countMarkers(lower, exploratoryMarkers),
	}

	fusion, alpha, beta := r.fusionWeights(signals)
	diversity, lambda := r.diversityLambda(signals)

	return domint.New(fusion, diversity, alpha, beta, lambda, signals)
}

// exactSignals scores the exact-match checklist: quoted substrings, digit
// sequences, hashtag tokens, long queries, proper-noun casing.
func (r *RuleBased) exactSignals(query string, words []string) int {
	score := 0
	if strings.ContainsAny(query, `"'`) || strings.ContainsAny(query, "「」『』") {
		score++
	}
	if strings.IndexFunc(query, unicode.IsDigit) >= 0 {
		score++
	}
	for _, w := range words {
		if strings.HasPrefix(w, "#") && len(w) > 1 {
			score++
			break
		}
	}
	if utf8.RuneCountInString(query) > r.cfg.ExactLengthRunes {
		score++
	}
	// Proper-noun casing: a capitalized word beyond the leading one.
	for _, w := range words[min(1, len(words)):] {
		first, _ := utf8.DecodeRuneInString(w)
		if unicode.IsUpper(first) {
			score++
			break
		}
	}
	return score
}

// semanticSignals scores the semantic checklist: interrogatives, abstract
// vocabulary, short queries.
func (r *RuleBased) semanticSignals(lower string, words []string) int {
	score := 0
	if containsAnyMarker(lower, questionWords) {
		score++
	}
	if containsAnyMarker(lower, conceptWords) {
		score++
	}
	if len(words) > 0 && len(words) <= r.cfg.ShortQueryWords {
		score++
	}
	return score
}

// fusionWeights applies the checklist thresholds. Exact-match wins over
// semantic when both reach the threshold: keyword bias is the safer default
// for queries that carry literal anchors.
func (r *RuleBased) fusionWeights(s domint.Signals) (domint.FusionCategory, float64, float64) {
	switch {
	case s.ExactMatch >= r.cfg.SignalThreshold:
		return domint.FusionExactMatch, r.cfg.AlphaExact, r.cfg.BetaExact
	case s.Semantic >= r.cfg.SignalThreshold && s.Semantic > s.ExactMatch:
		return domint.FusionSemantic, r.cfg.AlphaSemantic, r.cfg.BetaSemantic
	default:
		return domint.FusionBalanced, r.cfg.AlphaDefault, r.cfg.BetaDefault
	}
}

// diversityLambda compares the two marker counts directly, mirroring the
// specific/exploratory scoring of the source heuristics.
func (r *RuleBased) diversityLambda(s domint.Signals) (domint.DiversityCategory, float64) {
	switch {
	case s.Specific > s.Exploratory:
		return domint.DiversitySpecific, r.cfg.LambdaSpecific
	case s.Exploratory > s.Specific:
		return domint.DiversityExploratory, r.cfg.LambdaExploratory
	default:
		return domint.DiversityBalanced, r.cfg.LambdaDefault
	}
}

func countMarkers(lower string, markers []string) int {
	count := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			count++
		}
	}
	return count
}

func containsAnyMarker(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
