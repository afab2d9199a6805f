package signals

import (
	"context"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

// GeographicDetail is the evidence for a home-health provider billing many
// claims against very few beneficiaries.
type GeographicDetail struct {
	HCPCSCodes    []string `json:"hcpcs_codes"`
	Claims        int64    `json:"total_claims"`
	Beneficiaries int64    `json:"total_unique_beneficiaries"`
	Ratio         float64  `json:"bene_to_claims_ratio"`
	MaxRatio      float64  `json:"max_ratio"`
	Paid          float64  `json:"total_paid"`
	MonthsBilled  int      `json:"months_billed"`
}

func (GeographicDetail) Kind() Kind      { return GeographicImplausibility }
func (GeographicDetail) SortKey() string { return "" }

// GeographicDetector tests beneficiary density on allowlisted home-health
// procedure codes. Beneficiary counts are summed across rows, so the same
// patient seen in several months counts more than once.
type GeographicDetector struct{}

func (GeographicDetector) Kind() Kind { return GeographicImplausibility }

func (GeographicDetector) Requires() []dataset.Column {
	return []dataset.Column{
		dataset.BillingNPI, dataset.BillingPeriod, dataset.BillingHCPCS,
		dataset.BillingClaims, dataset.BillingBeneficiaries, dataset.BillingPaid,
	}
}

type homeHealth struct {
	claims        int64
	beneficiaries int64
	paid          float64
	months        monthSet
	codes         map[string]struct{}
}

// allowlisted reports whether code falls in any of ranges.
func allowlisted(code string, ranges []config.CodeRange) bool {
	for _, r := range ranges {
		if r.Contains(code) {
			return true
		}
	}
	return false
}

func (GeographicDetector) Detect(ctx context.Context, env Env) ([]Flag, error) {
	cfg := env.Config.Geographic

	providers := make(map[string]*homeHealth)
	err := scanBilling(ctx, env, func(r *model.BillingRecord) {
		if !allowlisted(r.HCPCSCode, cfg.HCPCSRanges) {
			return
		}
		h := providers[r.NPI]
		if h == nil {
			h = &homeHealth{months: make(monthSet), codes: make(map[string]struct{})}
			providers[r.NPI] = h
		}
		h.claims += r.ClaimCount
		h.beneficiaries += r.UniqueBeneficiaries
		h.paid += r.PaidAmountUSD
		h.months.add(r.ServicePeriod)
		h.codes[r.HCPCSCode] = struct{}{}
	})
	if err != nil {
		return nil, err
	}

	var flags []Flag
	var zeroClaims int
	for npi, h := range providers {
		if h.claims <= 0 {
			zeroClaims++
			continue
		}
		ratio := float64(h.beneficiaries) / float64(h.claims)
		if ratio >= cfg.MaxRatio {
			continue
		}
		sev := Medium
		if h.claims >= cfg.HighClaims {
			sev = High
		}
		flags = append(flags, Flag{
			NPI:      npi,
			Kind:     GeographicImplausibility,
			Severity: sev,
			Detail: GeographicDetail{
				HCPCSCodes:    sortedKeys(h.codes),
				Claims:        h.claims,
				Beneficiaries: h.beneficiaries,
				Ratio:         roundRatio(ratio),
				MaxRatio:      cfg.MaxRatio,
				Paid:          RoundCents(h.paid),
				MonthsBilled:  len(h.months),
			},
		})
	}
	if zeroClaims > 0 {
		env.Log.Debug().Int("providers", zeroClaims).Msg("zero-claim providers skipped")
	}
	sortFlags(flags)
	return flags, nil
}
