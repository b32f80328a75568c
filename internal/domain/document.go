package domain

import "time"

// Document is the per-query accumulator record threaded through every
// pipeline stage. Identity fields are set at ingestion by the retrieval
// caller; each later stage writes its own fields exactly once and never
// mutates fields written by an earlier stage.
type Document struct {
	// Identity, populated by retrieval. URL is the unique key within a query.
	URL           string
	Title         string
	Description   string
	PublishedDate string // RFC 3339, empty when unknown
	Author        string

	// Retrieval-origin fields.
	VectorScore       float64
	RetrievalPosition int // 0-based rank at ingestion

	// Written by the BM25 scorer.
	BM25Score float64

	// Written by score fusion.
	FinalRetrievalScore float64

	// Written when the external relevance ranker responds, matched by URL.
	LLMScore   float64
	LLMSnippet string

	// Written by the learning-to-rank cascade. Nil until the cascade runs;
	// nil is distinct from a computed 0.0.
	CascadeScore      *float64
	CascadeConfidence *float64

	// Written by the diversity selector. Nil until MMR runs.
	DiversityScore *float64

	// Sent reports whether this record has been emitted to the caller.
	Sent bool
}

// HasIdentity reports whether the record carries its mandatory identity key.
func (d *Document) HasIdentity() bool { return d != nil && d.URL != "" }

// RecencyDays returns the age of the document in days, or (0, false) when
// the publication date is absent or unparseable.
func (d *Document) RecencyDays(now time.Time) (float64, bool) {
	if d.PublishedDate == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, d.PublishedDate)
	if err != nil {
		return 0, false
	}
	return now.Sub(t).Hours() / 24, true
}
