package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that every threshold is usable. All problems are reported
// together, each wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if c.Excluded.Match != MatchAfter && c.Excluded.Match != MatchOverlap {
		bad("excluded_provider.match must be %q or %q, got %q", MatchAfter, MatchOverlap, c.Excluded.Match)
	}

	if c.Outlier.Percentile <= 0 || c.Outlier.Percentile >= 1 {
		bad("billing_outlier.percentile must be in (0, 1), got %v", c.Outlier.Percentile)
	}
	if c.Outlier.MinPeerGroupSize < 1 {
		bad("billing_outlier.min_peer_group_size must be positive")
	}
	if c.Outlier.RelativeAccuracy <= 0 || c.Outlier.RelativeAccuracy >= 1 {
		bad("billing_outlier.relative_accuracy must be in (0, 1), got %v", c.Outlier.RelativeAccuracy)
	}
	if c.Outlier.HighMultiple < 1 {
		bad("billing_outlier.high_multiple must be >= 1, got %v", c.Outlier.HighMultiple)
	}

	e := c.Escalation
	if e.WindowMonths < 1 || e.SpanMonths < e.WindowMonths {
		bad("rapid_escalation: need 1 <= window_months <= span_months, got %d and %d", e.WindowMonths, e.SpanMonths)
	}
	if e.MinMonths < 1 {
		bad("rapid_escalation.min_months must be positive")
	}
	if e.LookbackMonths < 1 {
		bad("rapid_escalation.lookback_months must be positive")
	}
	if e.FlagGrowthPct <= 100 || e.HighGrowthPct < e.FlagGrowthPct {
		bad("rapid_escalation: need 100 < flag_growth_pct <= high_growth_pct, got %v and %v", e.FlagGrowthPct, e.HighGrowthPct)
	}

	w := c.Workforce
	if w.WorkingDays <= 0 || w.HoursPerDay <= 0 || w.MaxClaimsPerHour <= 0 || w.DefaultHeadcount < 1 {
		bad("workforce_impossibility: working_days, hours_per_day, max_claims_per_hour and default_headcount must be positive")
	}

	o := c.Official
	if o.MinOrganizations < 2 {
		bad("shared_official.min_organizations must be >= 2, got %d", o.MinOrganizations)
	}
	if o.MinCombinedPaid < 0 || o.CriticalPaid < o.MinCombinedPaid {
		bad("shared_official: need 0 <= min_combined_paid <= critical_paid")
	}

	g := c.Geographic
	if g.MaxRatio <= 0 {
		bad("geographic_implausibility.max_ratio must be positive")
	}
	for _, r := range g.HCPCSRanges {
		if len(r.From) != len(r.To) || r.From > r.To {
			bad("geographic_implausibility: bad HCPCS range %s-%s", r.From, r.To)
		}
	}

	if _, err := c.AnalysisTime(time.Time{}); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
