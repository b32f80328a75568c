package rank

import (
	"github.com/kailas-cloud/rankdex/internal/domain"
	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
)

// fuseScores combines the vector and BM25 signals into one retrieval-stage
// relevance score using the intent-selected weights:
//
//	final = alpha*vector + beta*bm25
//
// No renormalization: BM25 is unbounded while vector similarity sits in
// ~[0,1], and the downstream relevance ranker re-derives an independent
// judgment rather than trusting this score's absolute magnitude. The
// candidate order is untouched; ordering is decided after the relevance
// ranker runs.
func fuseScores(docs []*domain.Document, it domint.Intent) {
	for _, d := range docs {
		d.FinalRetrievalScore = it.Alpha()*d.VectorScore + it.Beta()*d.BM25Score
	}
}
