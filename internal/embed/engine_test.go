package embed

import "testing"

func TestL2NormalizeProducesUnitVector(t *testing.T) {
	v := []float32{3, 4, 0}
	l2Normalize(v)

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if diff := sumSquares - 1.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected unit vector after l2Normalize, sum of squares = %f", sumSquares)
	}
	if v[0] != 0.6 || v[1] != 0.8 {
		t.Fatalf("unexpected normalized values: %v", v)
	}
}

func TestL2NormalizeLeavesZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	l2Normalize(v)
	for i, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector to remain zero at index %d, got %f", i, x)
		}
	}
}

func TestQueryPrefixIsPrependedOnce(t *testing.T) {
	q := "how does auth work"
	prefixed := QueryPrefix + q
	if prefixed[len(QueryPrefix):] != q {
		t.Fatalf("expected query text preserved after prefix, got %q", prefixed)
	}
}
