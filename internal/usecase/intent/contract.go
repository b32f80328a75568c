package intent

import domint "github.com/kailas-cloud/rankdex/internal/domain/intent"

// Strategy classifies a query into fusion weights and a diversity lambda.
// Implementations must be pure functions of the query text: deterministic,
// total, never failing. The rule-based classifier is the default; a learned
// classifier can replace it without touching fusion or MMR.
type Strategy interface {
	Classify(query string) domint.Intent
}
