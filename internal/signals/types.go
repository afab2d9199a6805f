package signals

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/progress"
)

// Kind identifies a fraud signal.
type Kind string

const (
	ExcludedProvider         Kind = "excluded_provider"
	BillingOutlier           Kind = "billing_outlier"
	RapidEscalation          Kind = "rapid_escalation"
	WorkforceImpossibility   Kind = "workforce_impossibility"
	SharedOfficial           Kind = "shared_official"
	GeographicImplausibility Kind = "geographic_implausibility"
)

// Kinds lists every signal in report order.
func Kinds() []Kind {
	return []Kind{
		ExcludedProvider,
		BillingOutlier,
		RapidEscalation,
		WorkforceImpossibility,
		SharedOfficial,
		GeographicImplausibility,
	}
}

// Rank orders kinds by their position in Kinds.
func (k Kind) Rank() int {
	for i, kind := range Kinds() {
		if kind == k {
			return i
		}
	}
	return len(Kinds())
}

// Severity is totally ordered: Critical > High > Medium > None.
type Severity int

const (
	SeverityNone Severity = iota
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	}
	return "none"
}

// Severities lists the emitted severities from most to least severe.
func Severities() []Severity { return []Severity{Critical, High, Medium} }

// ParseSeverity is the inverse of String for emitted severities.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	case "critical":
		return Critical, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Flag is one piece of evidence that a provider exhibits a signal.
type Flag struct {
	NPI                     string
	Kind                    Kind
	Severity                Severity
	EstimatedOverpaymentUSD float64
	Detail                  Detail
}

// Detail is the signal-specific evidence carried by a Flag. Each Kind has
// exactly one concrete Detail type.
type Detail interface {
	Kind() Kind
	// SortKey orders flags of the same kind for one provider.
	SortKey() string
}

// Env is what a detector may read.
type Env struct {
	Snapshot     dataset.Snapshot
	Config       *config.Config
	AnalysisDate time.Time
	Log          zerolog.Logger
	Progress     progress.Tracker
}

func (e Env) tracker() progress.Tracker {
	if e.Progress == nil {
		return progress.Nop()
	}
	return e.Progress
}

// Detector computes one signal over a snapshot. Detectors hold no state
// between runs and never observe each other's output.
type Detector interface {
	Kind() Kind
	// Requires lists the snapshot columns the detector cannot run without.
	Requires() []dataset.Column
	Detect(ctx context.Context, env Env) ([]Flag, error)
}

// All returns one detector per signal, in report order.
func All() []Detector {
	return []Detector{
		ExcludedProviderDetector{},
		BillingOutlierDetector{},
		RapidEscalationDetector{},
		WorkforceDetector{},
		SharedOfficialDetector{},
		GeographicDetector{},
	}
}

// RoundCents rounds a dollar amount to the nearest cent.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
