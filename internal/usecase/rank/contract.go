package rank

import (
	"context"

	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
	"github.com/kailas-cloud/rankdex/internal/usecase/cascade"
)

// Relevance is one semantic relevance judgment from the external ranker.
// Judgments are matched back to document records by URL, never by position:
// the external ranker may reorder or drop documents.
type Relevance struct {
	URL     string
	Score   float64
	Snippet string
}

// RelevanceRanker is the external LLM relevance scorer. Its call is the
// pipeline's only suspension point; failures are surfaced to the caller
// because the core has no safe default semantic-relevance score.
type RelevanceRanker interface {
	Rank(ctx context.Context, query string, docs []Candidate) ([]Relevance, error)
}

// Candidate is the slice of a document record the relevance ranker sees.
type Candidate struct {
	URL         string
	Title       string
	Description string
}

// Result is the pipeline output: the final ordered, diversified document
// sequence plus per-query audit data.
type Result struct {
	QueryID   string
	Intent    domint.Intent
	Documents []*RankedDocument
	Cascade   cascade.Metadata
}

// RankedDocument is one emitted record with every score field populated
// (defaults where a stage was skipped).
type RankedDocument struct {
	URL                 string   `json:"url"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	PublishedDate       string   `json:"published_date,omitempty"`
	Author              string   `json:"author,omitempty"`
	VectorScore         float64  `json:"vector_score"`
	BM25Score           float64  `json:"bm25_score"`
	FinalRetrievalScore float64  `json:"final_retrieval_score"`
	RetrievalPosition   int      `json:"retrieval_position"`
	LLMScore            float64  `json:"llm_score"`
	LLMSnippet          string   `json:"llm_snippet,omitempty"`
	CascadeScore        *float64 `json:"cascade_score,omitempty"`
	CascadeConfidence   *float64 `json:"cascade_confidence,omitempty"`
	DiversityScore      *float64 `json:"diversity_score,omitempty"`
}
