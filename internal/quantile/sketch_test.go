package quantile

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func exactQuantile(sorted []float64, q float64) float64 {
	return sorted[int(q*float64(len(sorted)-1))]
}

func TestSketch_RelativeErrorBound(t *testing.T) {
	const alpha = 0.01
	s, err := New(alpha)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 20000)
	for i := range values {
		values[i] = math.Exp(rng.NormFloat64()*2 + 10)
		if err := s.Add(values[i]); err != nil {
			t.Fatal(err)
		}
	}
	sort.Float64s(values)

	for _, q := range []float64{0.5, 0.9, 0.99, 0.999} {
		got, err := s.Quantile(q)
		if err != nil {
			t.Fatal(err)
		}
		want := exactQuantile(values, q)
		if math.Abs(got-want) > alpha*want*1.0001 {
			t.Errorf("q=%v: estimate %v outside ±%v of %v", q, got, alpha, want)
		}
		upper, _ := s.UpperBound(q)
		if upper < want {
			t.Errorf("q=%v: upper bound %v below exact %v", q, upper, want)
		}
	}
}

func TestSketch_UpperBoundMonotoneInQuantile(t *testing.T) {
	s, _ := New(0.01)
	for i := 1; i <= 500; i++ {
		s.Add(float64(i * i))
	}
	prev := 0.0
	for _, q := range []float64{0.5, 0.75, 0.9, 0.95, 0.99, 0.995, 0.999} {
		v, err := s.UpperBound(q)
		if err != nil {
			t.Fatal(err)
		}
		if v < prev {
			t.Errorf("upper bound decreased at q=%v: %v < %v", q, v, prev)
		}
		prev = v
	}
}

func TestSketch_ZeroValuesAndEmpty(t *testing.T) {
	s, _ := New(0.02)
	if _, err := s.Quantile(0.5); err == nil {
		t.Error("expected error for empty sketch")
	}
	for i := 0; i < 10; i++ {
		s.Add(0)
	}
	if v, err := s.Quantile(0.99); err != nil || v != 0 {
		t.Errorf("expected 0, got %v %v", v, err)
	}
	if s.Count() != 10 {
		t.Errorf("expected count 10, got %d", s.Count())
	}
	if err := s.Add(-1); err == nil {
		t.Error("expected error for negative value")
	}
}

func TestNew_RejectsBadAccuracy(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("expected error for zero accuracy")
	}
	if _, err := New(1.5); err == nil {
		t.Error("expected error for accuracy >= 1")
	}
}
