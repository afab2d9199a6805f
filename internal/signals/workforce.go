package signals

import (
	"context"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

// WorkforceDetail is the evidence for an organization billing more claims
// than its workforce could physically deliver.
type WorkforceDetail struct {
	Headcount                int64       `json:"headcount"`
	HeadcountAssumed         bool        `json:"headcount_assumed"`
	PeakMonth                model.Month `json:"peak_month"`
	PeakMonthlyClaims        int64       `json:"peak_monthly_claims"`
	ClaimsPerProviderHour    float64     `json:"implied_claims_per_provider_hour"`
	MaxClaimsPerHour         float64     `json:"max_claims_per_hour"`
	ImpossibleMonths         int         `json:"impossible_months_count"`
	ClaimsInImpossibleMonths int64       `json:"total_claims_impossible"`
	PaidInImpossibleMonths   float64     `json:"total_paid_impossible"`
}

func (WorkforceDetail) Kind() Kind        { return WorkforceImpossibility }
func (d WorkforceDetail) SortKey() string { return d.PeakMonth.String() }

// WorkforceDetector bounds monthly claim volume by what an organization's
// headcount could deliver in working hours.
type WorkforceDetector struct{}

func (WorkforceDetector) Kind() Kind { return WorkforceImpossibility }

func (WorkforceDetector) Requires() []dataset.Column {
	return []dataset.Column{
		dataset.ProviderNPI, dataset.ProviderEntityType,
		dataset.BillingNPI, dataset.BillingPeriod, dataset.BillingClaims, dataset.BillingPaid,
	}
}

type monthVolume struct {
	claims int64
	paid   float64
}

func (WorkforceDetector) Detect(ctx context.Context, env Env) ([]Flag, error) {
	cfg := env.Config.Workforce

	// Headcount per organization; 0 means unknown.
	orgs := make(map[string]int64)
	err := scanProviders(ctx, env, func(p *model.Provider) {
		if !p.IsOrganization() {
			return
		}
		if _, seen := orgs[p.NPI]; !seen {
			orgs[p.NPI] = max(p.AffiliatedProviders, 0)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}

	monthly := make(map[string]map[model.Month]*monthVolume)
	err = scanBilling(ctx, env, func(r *model.BillingRecord) {
		if _, ok := orgs[r.NPI]; !ok {
			return
		}
		months := monthly[r.NPI]
		if months == nil {
			months = make(map[model.Month]*monthVolume)
			monthly[r.NPI] = months
		}
		v := months[r.ServicePeriod]
		if v == nil {
			v = &monthVolume{}
			months[r.ServicePeriod] = v
		}
		v.claims += r.ClaimCount
		v.paid += r.PaidAmountUSD
	})
	if err != nil {
		return nil, err
	}

	var flags []Flag
	var assumed int
	for npi, months := range monthly {
		headcount, known := orgs[npi], true
		if headcount == 0 {
			headcount, known = cfg.DefaultHeadcount, false
		}
		detail, overpayment, ok := workforce(months, headcount, cfg)
		if !ok {
			continue
		}
		detail.HeadcountAssumed = !known
		if !known {
			assumed++
		}
		flags = append(flags, Flag{
			NPI:                     npi,
			Kind:                    WorkforceImpossibility,
			Severity:                High,
			EstimatedOverpaymentUSD: RoundCents(overpayment),
			Detail:                  detail,
		})
	}
	if assumed > 0 {
		env.Log.Warn().
			Int("flags", assumed).
			Int64("assumed_headcount", cfg.DefaultHeadcount).
			Msg("headcount unknown; assumed minimum, likely undercounts staff")
	}
	sortFlags(flags)
	return flags, nil
}

// workforce evaluates one organization. ok is true when some month exceeds
// the claims-per-provider-hour bound.
func workforce(months map[model.Month]*monthVolume, headcount int64, cfg config.WorkforceConfig) (WorkforceDetail, float64, bool) {
	hours := float64(headcount) * cfg.WorkingDays * cfg.HoursPerDay

	d := WorkforceDetail{Headcount: headcount, MaxClaimsPerHour: cfg.MaxClaimsPerHour}
	for m, v := range months {
		if v.claims > d.PeakMonthlyClaims || (v.claims == d.PeakMonthlyClaims && (d.PeakMonth.IsZero() || m < d.PeakMonth)) {
			d.PeakMonth, d.PeakMonthlyClaims = m, v.claims
		}
		if float64(v.claims)/hours > cfg.MaxClaimsPerHour {
			d.ImpossibleMonths++
			d.ClaimsInImpossibleMonths += v.claims
			d.PaidInImpossibleMonths += v.paid
		}
	}
	d.ClaimsPerProviderHour = roundRatio(float64(d.PeakMonthlyClaims) / hours)
	if d.ImpossibleMonths == 0 {
		return d, 0, false
	}
	d.PaidInImpossibleMonths = RoundCents(d.PaidInImpossibleMonths)

	// Payments for claims beyond what the workforce could have delivered.
	plausible := cfg.MaxClaimsPerHour * hours * float64(d.ImpossibleMonths)
	var overpayment float64
	if d.ClaimsInImpossibleMonths > 0 && d.PaidInImpossibleMonths > 0 {
		overpayment = max(0, d.PaidInImpossibleMonths*(1-plausible/float64(d.ClaimsInImpossibleMonths)))
	}
	return d, overpayment, true
}
