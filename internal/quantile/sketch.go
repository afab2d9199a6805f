// Package quantile estimates per-group quantiles in bounded memory.
//
// Estimates come from a DDSketch: for any quantile q the returned value v
// satisfies |v - x_q| <= α·x_q, where x_q is the exact quantile and α the
// configured relative accuracy.
package quantile

import (
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"
)

// MaxBins caps the sketch size. Bins for the lowest values are collapsed
// first, so the upper quantiles keep their accuracy guarantee.
const MaxBins = 2048

// Sketch accumulates non-negative values.
type Sketch struct {
	dd    *ddsketch.DDSketch
	alpha float64
	n     int64
}

// New returns an empty sketch with relative accuracy alpha, 0 < alpha < 1.
func New(alpha float64) (*Sketch, error) {
	dd, err := ddsketch.LogCollapsingLowestDenseDDSketch(alpha, MaxBins)
	if err != nil {
		return nil, fmt.Errorf("creating sketch: %w", err)
	}
	return &Sketch{dd: dd, alpha: alpha}, nil
}

// Add records v.
func (s *Sketch) Add(v float64) error {
	if v < 0 {
		return fmt.Errorf("negative value %v", v)
	}
	if err := s.dd.Add(v); err != nil {
		return err
	}
	s.n++
	return nil
}

func (s *Sketch) Count() int64 { return s.n }

func (s *Sketch) RelativeAccuracy() float64 { return s.alpha }

// Quantile returns the estimate of the q-quantile.
func (s *Sketch) Quantile(q float64) (float64, error) {
	if s.n == 0 {
		return 0, fmt.Errorf("quantile of empty sketch")
	}
	return s.dd.GetValueAtQuantile(q)
}

// UpperBound returns the smallest value guaranteed to be at least the exact
// q-quantile: estimate / (1 - α).
func (s *Sketch) UpperBound(q float64) (float64, error) {
	v, err := s.Quantile(q)
	if err != nil {
		return 0, err
	}
	// The slack absorbs floating point rounding in the bin mapping.
	return v / (1 - s.alpha) * (1 + 1e-9), nil
}
