// Package aggregate reduces detector output into one record per flagged
// provider and summarizes the run.
package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gyeh/fraud-signals/internal/model"
	"github.com/gyeh/fraud-signals/internal/signals"
)

// Stats are a provider's totals over the whole billing ledger.
type Stats struct {
	TotalPaidUSD             float64     `json:"total_paid_usd"`
	TotalClaims              int64       `json:"total_claims"`
	TotalUniqueBeneficiaries int64       `json:"total_unique_beneficiaries"`
	FirstClaimMonth          model.Month `json:"first_claim_month,omitempty"`
	LastClaimMonth           model.Month `json:"last_claim_month,omitempty"`
}

// FlaggedProvider is every flag raised against one NPI.
type FlaggedProvider struct {
	NPI             string           `json:"npi"`
	Name            string           `json:"provider_name"`
	EntityType      model.EntityType `json:"entity_type"`
	TaxonomyCode    string           `json:"taxonomy_code"`
	State           string           `json:"state"`
	EnumerationDate string           `json:"enumeration_date,omitempty"`
	Stats           Stats            `json:"aggregate_stats"`

	OverallSeverity     signals.Severity `json:"overall_severity"`
	TotalOverpaymentUSD float64          `json:"total_estimated_overpayment_usd"`
	FlagCount           int              `json:"flag_count"`
	Flags               []signals.Flag   `json:"flags"`
}

// Reduce groups flags by NPI. The result does not depend on the order of
// outputs or of the flags within them. Overpayments from different signals
// are summed as-is, so a payment implicated by two signals counts twice.
func Reduce(log zerolog.Logger, outputs ...[]signals.Flag) []FlaggedProvider {
	byNPI := make(map[string]*FlaggedProvider)
	var malformed int
	for _, flags := range outputs {
		for _, f := range flags {
			if !model.ValidNPI(f.NPI) {
				malformed++
				continue
			}
			p := byNPI[f.NPI]
			if p == nil {
				p = &FlaggedProvider{NPI: f.NPI, EntityType: model.EntityUnknown}
				byNPI[f.NPI] = p
			}
			p.Flags = append(p.Flags, f)
		}
	}
	if malformed > 0 {
		log.Warn().Int("flags", malformed).Msg("dropped flags with malformed NPI")
	}

	providers := make([]FlaggedProvider, 0, len(byNPI))
	for _, p := range byNPI {
		slices.SortFunc(p.Flags, compareFlags)
		var total float64
		for _, f := range p.Flags {
			p.OverallSeverity = max(p.OverallSeverity, f.Severity)
			total += f.EstimatedOverpaymentUSD
		}
		p.TotalOverpaymentUSD = signals.RoundCents(total)
		p.FlagCount = len(p.Flags)
		providers = append(providers, *p)
	}
	slices.SortFunc(providers, compareProviders)
	return providers
}

func compareFlags(a, b signals.Flag) int {
	if c := cmp.Compare(a.Kind.Rank(), b.Kind.Rank()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Detail.SortKey(), b.Detail.SortKey()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
		return c
	}
	return cmp.Compare(b.EstimatedOverpaymentUSD, a.EstimatedOverpaymentUSD)
}

// compareProviders orders by severity, then overpayment, both descending.
func compareProviders(a, b FlaggedProvider) int {
	if c := cmp.Compare(b.OverallSeverity, a.OverallSeverity); c != 0 {
		return c
	}
	if c := cmp.Compare(b.TotalOverpaymentUSD, a.TotalOverpaymentUSD); c != 0 {
		return c
	}
	return strings.Compare(a.NPI, b.NPI)
}

// Summary is the run-level rollup written into report metadata.
type Summary struct {
	TotalProvidersScanned int64                    `json:"total_providers_scanned"`
	TotalProvidersFlagged int                      `json:"total_providers_flagged"`
	TotalFlags            int                      `json:"total_flags"`
	TotalOverpaymentUSD   float64                  `json:"total_estimated_overpayment_usd"`
	SeverityDistribution  map[signals.Severity]int `json:"severity_distribution"`
	SignalCounts          map[signals.Kind]int     `json:"signal_counts"`
	DetectorErrors        map[signals.Kind]string  `json:"detector_errors"`
}

// Summarize counts providers and flags. Every severity and signal has an
// entry, zero or not.
func Summarize(providers []FlaggedProvider, scanned int64) Summary {
	s := Summary{
		TotalProvidersScanned: scanned,
		TotalProvidersFlagged: len(providers),
		SeverityDistribution:  make(map[signals.Severity]int),
		SignalCounts:          make(map[signals.Kind]int),
		DetectorErrors:        make(map[signals.Kind]string),
	}
	for _, sev := range signals.Severities() {
		s.SeverityDistribution[sev] = 0
	}
	for _, k := range signals.Kinds() {
		s.SignalCounts[k] = 0
	}

	var total float64
	for _, p := range providers {
		s.SeverityDistribution[p.OverallSeverity]++
		s.TotalFlags += len(p.Flags)
		total += p.TotalOverpaymentUSD
		for _, f := range p.Flags {
			s.SignalCounts[f.Kind]++
		}
	}
	s.TotalOverpaymentUSD = signals.RoundCents(total)
	return s
}
