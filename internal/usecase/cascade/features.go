package cascade

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/rankdex/internal/domain"
	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
	"github.com/kailas-cloud/rankdex/internal/domain/token"
)

// FeatureVersion identifies the feature layout below. Any change to the
// ordering or meaning of the indices invalidates trained models and
// requires a bump here and in the model files.
const FeatureVersion = 3

// Feature vector layout. Fixed order is part of the model contract.
const (
	// Query features.
	FeatureQueryChars = iota
	FeatureQueryWords
	FeatureHasQuotes
	FeatureHasDigits
	FeatureHasQuestionWord
	FeatureHasTemporal
	FeatureFusionIntent
	FeatureDiversityIntent

	// Document features.
	FeatureDocWords
	FeatureTitleChars
	FeatureDescriptionChars
	FeatureURLChars
	FeatureHasAuthor
	FeatureHasPublicationDate
	FeatureRecencyDays
	FeatureFieldCompleteness

	// Query-document interaction features.
	FeatureBM25Score
	FeatureVectorScore
	FeatureFinalRetrievalScore
	FeatureTitleExactMatch
	FeatureDescriptionExactMatch
	FeatureKeywordOverlapRatio

	// Ranking features.
	FeatureRetrievalPosition
	FeatureRelevanceRank
	FeatureLLMScore
	FeatureRelativeScoreToTop
	FeatureScorePercentile
	FeaturePositionChange

	// FeatureCount is the fixed feature vector length.
	FeatureCount
)

// MissingRecencyDays is the sentinel for documents without a usable
// publication date. The model cannot accept missing values, so gaps are
// filled with explicit defaults instead of null propagation.
const MissingRecencyDays = 999999

// Intent category encodings. Values mirror the trained-model vocabulary.
const (
	encodeSpecific    = 0
	encodeExploratory = 1
	encodeBalanced    = 2

	encodeExactMatch = 0
	encodeSemantic   = 1
)

var temporalWords = []string{
	"today", "yesterday", "latest", "recent", "news", "now",
	"今天", "昨天", "最新", "近期", "現在", "现在",
}

var featureQuestionWords = []string{
	"what", "why", "how", "where", "which", "who", "when",
	"什麼", "什么", "為什麼", "为什么", "如何", "怎麼", "怎么",
}

// FeatureExtractor builds fixed-length feature vectors for the cascade.
// The clock is injectable for recency tests.
type FeatureExtractor struct {
	now func() time.Time
}

// NewFeatureExtractor creates an extractor using the wall clock.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{now: time.Now}
}

// Extract produces one FeatureCount-length vector per document. Documents
// must be in post-relevance order: index i is the relevance rank. Missing
// input data never shortens the vector; sentinels fill the gaps.
func (e *FeatureExtractor) Extract(
	query string, it domint.Intent, docs []*domain.Document,
) [][]float64 {
	qf := e.queryFeatures(query, it)
	queryTokens := uniqueTokens(token.Tokenize(query))
	queryLower := strings.ToLower(query)
	now := e.now()

	topScore := 0.0
	allScores := make([]float64, len(docs))
	for i, d := range docs {
		allScores[i] = d.LLMScore
		if d.LLMScore > topScore {
			topScore = d.LLMScore
		}
	}

	out := make([][]float64, len(docs))
	for i, d := range docs {
		v := make([]float64, FeatureCount)
		copy(v, qf)

		// Document features.
		v[FeatureDocWords] = float64(len(strings.Fields(d.Description)))
		v[FeatureTitleChars] = float64(utf8.RuneCountInString(d.Title))
		v[FeatureDescriptionChars] = float64(utf8.RuneCountInString(d.Description))
		v[FeatureURLChars] = float64(len(d.URL))
		v[FeatureHasAuthor] = boolFeature(d.Author != "")
		v[FeatureHasPublicationDate] = boolFeature(d.PublishedDate != "")
		if days, ok := d.RecencyDays(now); ok {
			v[FeatureRecencyDays] = days
		} else {
			v[FeatureRecencyDays] = MissingRecencyDays
		}
		v[FeatureFieldCompleteness] = fieldCompleteness(d)

		// Interaction features.
		v[FeatureBM25Score] = d.BM25Score
		v[FeatureVectorScore] = d.VectorScore
		v[FeatureFinalRetrievalScore] = d.FinalRetrievalScore
		v[FeatureTitleExactMatch] = boolFeature(
			d.Title != "" && strings.Contains(strings.ToLower(d.Title), queryLower))
		v[FeatureDescriptionExactMatch] = boolFeature(
			d.Description != "" && strings.Contains(strings.ToLower(d.Description), queryLower))
		v[FeatureKeywordOverlapRatio] = overlapRatio(queryTokens, d)

		// Ranking features.
		v[FeatureRetrievalPosition] = float64(d.RetrievalPosition)
		v[FeatureRelevanceRank] = float64(i)
		v[FeatureLLMScore] = d.LLMScore
		if topScore > 0 {
			v[FeatureRelativeScoreToTop] = d.LLMScore / topScore
		} else {
			v[FeatureRelativeScoreToTop] = 1
		}
		v[FeatureScorePercentile] = percentile(d.LLMScore, allScores)
		v[FeaturePositionChange] = float64(d.RetrievalPosition - i)

		out[i] = v
	}
	return out
}

// queryFeatures fills the query-level prefix, shared by every document.
func (e *FeatureExtractor) queryFeatures(query string, it domint.Intent) []float64 {
	v := make([]float64, FeatureCount)
	lower := strings.ToLower(query)

	v[FeatureQueryChars] = float64(utf8.RuneCountInString(query))
	v[FeatureQueryWords] = float64(len(strings.Fields(query)))
	v[FeatureHasQuotes] = boolFeature(strings.ContainsAny(query, `"'`))
	v[FeatureHasDigits] = boolFeature(strings.IndexFunc(query, unicode.IsDigit) >= 0)
	v[FeatureHasQuestionWord] = boolFeature(containsAny(lower, featureQuestionWords))
	v[FeatureHasTemporal] = boolFeature(containsAny(lower, temporalWords))
	v[FeatureFusionIntent] = encodeFusion(it.Fusion())
	v[FeatureDiversityIntent] = encodeDiversity(it.Diversity())
	return v[:FeatureDiversityIntent+1]
}

func encodeFusion(c domint.FusionCategory) float64 {
	switch c {
	case domint.FusionExactMatch:
		return encodeExactMatch
	case domint.FusionSemantic:
		return encodeSemantic
	default:
		return encodeBalanced
	}
}

func encodeDiversity(c domint.DiversityCategory) float64 {
	switch c {
	case domint.DiversitySpecific:
		return encodeSpecific
	case domint.DiversityExploratory:
		return encodeExploratory
	default:
		return encodeBalanced
	}
}

// fieldCompleteness is the fraction of the five identity fields populated.
func fieldCompleteness(d *domain.Document) float64 {
	fields := []string{d.URL, d.Title, d.Description, d.PublishedDate, d.Author}
	populated := 0
	for _, f := range fields {
		if f != "" {
			populated++
		}
	}
	return float64(populated) / float64(len(fields))
}

// overlapRatio is |query terms present in doc| / |query terms|.
func overlapRatio(queryTokens map[string]struct{}, d *domain.Document) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	docTokens := uniqueTokens(token.Tokenize(d.Title + " " + d.Description))
	overlap := 0
	for t := range queryTokens {
		if _, ok := docTokens[t]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTokens))
}

// percentile ranks a score within the result set, 0-100. Single-element
// sets sit at the median.
func percentile(score float64, all []float64) float64 {
	if len(all) <= 1 {
		return 50
	}
	sorted := make([]float64, len(all))
	copy(sorted, all)
	sort.Float64s(sorted)
	rank := sort.SearchFloat64s(sorted, score)
	return float64(rank) / float64(len(sorted)-1) * 100
}

func uniqueTokens(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
