// Package intent holds the per-query classification result that tunes
// score fusion and diversity selection.
package intent

// FusionCategory selects the vector/keyword weight pair for score fusion.
type FusionCategory string

// Fusion categories.
const (
	FusionExactMatch FusionCategory = "exact-match"
	FusionSemantic   FusionCategory = "semantic"
	FusionBalanced   FusionCategory = "balanced"
)

// DiversityCategory selects the MMR lambda.
type DiversityCategory string

// Diversity categories.
const (
	DiversitySpecific    DiversityCategory = "specific"
	DiversityExploratory DiversityCategory = "exploratory"
	DiversityBalanced    DiversityCategory = "balanced"
)

// Signals are the raw rule-checklist counters that produced a classification.
// Kept for audit logging and as cascade features.
type Signals struct {
	ExactMatch  int
	Semantic    int
	Specific    int
	Exploratory int
}

// Intent is the classification result for one query. Computed once per
// query, read-only afterward.
type Intent struct {
	fusion    FusionCategory
	diversity DiversityCategory
	alpha     float64
	beta      float64
	lambda    float64
	signals   Signals
}

// New creates an intent classification result.
func New(
	fusion FusionCategory, diversity DiversityCategory,
	alpha, beta, lambda float64, signals Signals,
) Intent {
	return Intent{
		fusion:    fusion,
		diversity: diversity,
		alpha:     alpha,
		beta:      beta,
		lambda:    lambda,
		signals:   signals,
	}
}

// Fusion returns the fusion category.
func (i *Intent) Fusion() FusionCategory { return i.fusion }

// Diversity returns the diversity category.
func (i *Intent) Diversity() DiversityCategory { return i.diversity }

// Alpha returns the vector-score fusion weight.
func (i *Intent) Alpha() float64 { return i.alpha }

// Beta returns the BM25-score fusion weight.
func (i *Intent) Beta() float64 { return i.beta }

// Lambda returns the MMR relevance/novelty trade-off.
func (i *Intent) Lambda() float64 { return i.lambda }

// Signals returns the raw checklist counters.
func (i *Intent) Signals() Signals { return i.signals }
