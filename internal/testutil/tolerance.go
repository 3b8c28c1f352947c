package testutil

import (
	"math"
	"testing"
)

// RequireNearlyEqual fails t if got and want differ by more than eps.
func RequireNearlyEqual(t *testing.T, got, want, eps float64) {
	t.Helper()

	if diff := math.Abs(got - want); diff > eps {
		t.Fatalf("got %v, want %v (diff %v > eps %v)", got, want, diff, eps)
	}
}

// RequireSliceNearlyEqual fails t at the first frame where got and want
// differ by more than eps.
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d frames, want %d", len(got), len(want))
	}

	for i := range got {
		if diff := math.Abs(got[i] - want[i]); diff > eps {
			t.Fatalf("frame %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireFinite fails t if any channel holds NaN or Inf.
func RequireFinite(t *testing.T, channels ...[]float64) {
	t.Helper()

	for ch, data := range channels {
		for i, v := range data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("channel %d frame %d: non-finite value %v", ch, i, v)
			}
		}
	}
}

// Peak returns the largest absolute sample in x.
func Peak(x []float64) float64 {
	p := 0.0
	for _, v := range x {
		p = max(p, math.Abs(v))
	}

	return p
}

// PeakDiff returns the largest absolute difference between a and b, or +Inf
// when their lengths differ.
func PeakDiff(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	d := 0.0
	for i := range a {
		d = max(d, math.Abs(a[i]-b[i]))
	}

	return d
}
