// Package keyword computes per-document BM25 relevance over the per-query
// candidate set.
package keyword

import (
	"math"
	"strings"

	"github.com/kailas-cloud/rankdex/internal/domain"
	"github.com/kailas-cloud/rankdex/internal/domain/token"
)

// Default BM25 parameters (Robertson et al. standard values).
const (
	DefaultK1          = 1.5
	DefaultB           = 0.75
	DefaultTitleWeight = 3
)

// Scorer computes Okapi BM25 scores over a query-scoped corpus.
// Immutable after construction, safe for concurrent use.
type Scorer struct {
	k1          float64
	b           float64
	titleWeight int
}

// NewScorer creates a BM25 scorer. Non-positive parameters fall back to the
// standard defaults.
func NewScorer(k1, b float64, titleWeight int) *Scorer {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b <= 0 {
		b = DefaultB
	}
	if titleWeight <= 0 {
		titleWeight = DefaultTitleWeight
	}
	return &Scorer{k1: k1, b: b, titleWeight: titleWeight}
}

// DocumentTokens tokenizes a document's scorable text. The title is
// repeated so title matches dominate relative to body matches without a
// separate additive term.
func (s *Scorer) DocumentTokens(d *domain.Document) []string {
	var sb strings.Builder
	for i := 0; i < s.titleWeight; i++ {
		sb.WriteString(d.Title)
		sb.WriteString(" ")
	}
	sb.WriteString(d.Description)
	return token.Tokenize(sb.String())
}

// ScoreAll tokenizes every candidate once, builds the per-query corpus
// statistics, and writes BM25Score into each record. It never reorders the
// candidate set. The corpus is returned for downstream audit logging.
func (s *Scorer) ScoreAll(query string, docs []*domain.Document) token.Corpus {
	docTokens := make([][]string, len(docs))
	for i, d := range docs {
		docTokens[i] = s.DocumentTokens(d)
	}
	corpus := token.BuildCorpus(docTokens)

	queryTokens := token.Tokenize(query)
	if len(queryTokens) == 0 {
		for _, d := range docs {
			d.BM25Score = 0
		}
		return corpus
	}

	for i, d := range docs {
		d.BM25Score = s.score(queryTokens, token.TermFrequencies(docTokens[i]), len(docTokens[i]), corpus)
	}
	return corpus
}

// score evaluates the BM25 sum for one document.
//
//	score(D) = sum_t IDF(t) * f(t,D)*(k1+1) / (f(t,D) + k1*(1 - b + b*|D|/avgdl))
func (s *Scorer) score(queryTokens []string, tf map[string]int, docLen int, corpus token.Corpus) float64 {
	avgdl := corpus.AverageDocLength
	if avgdl == 0 {
		// All documents are empty; every term frequency is zero anyway,
		// but keep the normalization term finite.
		avgdl = 1
	}
	norm := s.k1 * (1 - s.b + s.b*float64(docLen)/avgdl)

	var total float64
	for _, t := range queryTokens {
		f := float64(tf[t])
		if f == 0 {
			continue
		}
		total += s.idf(t, corpus) * f * (s.k1 + 1) / (f + norm)
	}
	return total
}

// idf computes smoothed inverse document frequency:
// ln((N - n + 0.5)/(n + 0.5) + 1). Always positive.
func (s *Scorer) idf(term string, corpus token.Corpus) float64 {
	n := float64(corpus.DocFrequency[term])
	N := float64(corpus.DocumentCount)
	return math.Log((N-n+0.5)/(n+0.5) + 1)
}
