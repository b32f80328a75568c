// Package vector provides the small amount of embedding math the ranking
// core needs.
package vector

import "math"

// Cosine returns the cosine similarity of two embeddings, clamped to
// [0, 1]. Mismatched or zero-norm inputs score 0 rather than failing:
// a missing or malformed embedding must never exclude a document.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Min(1, math.Max(0, sim))
}
