package vector

import (
	"math"
	"testing"
)

func TestCosine_Identical(t *testing.T) {
	v := []float32{0.3, 0.4, 0.5}
	if got := Cosine(v, v); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(v, v) = %g, want 1", got)
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("Cosine = %g, want 0", got)
	}
}

func TestCosine_NegativeClampedToZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{-1, 0}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("Cosine = %g, want 0 (clamped)", got)
	}
}

func TestCosine_MismatchedLengths(t *testing.T) {
	if got := Cosine([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("Cosine = %g, want 0", got)
	}
}

func TestCosine_EmptyAndZeroNorm(t *testing.T) {
	if got := Cosine(nil, nil); got != 0 {
		t.Errorf("Cosine(nil, nil) = %g, want 0", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("Cosine(zero, v) = %g, want 0", got)
	}
}

func TestCosine_Scaled(t *testing.T) {
	// Cosine is scale invariant.
	a := []float32{1, 2, 3}
	b := []float32{2, 4, 6}
	if got := Cosine(a, b); math.Abs(got-1) > 1e-6 {
		t.Errorf("Cosine = %g, want 1", got)
	}
}
