package signals

import (
	"context"
	"time"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

// EscalationDetail is the evidence for a recently enumerated provider whose
// early monthly billing grew explosively.
type EscalationDetail struct {
	EnumerationDate     string      `json:"enumeration_date"`
	FirstBilledMonth    model.Month `json:"first_billed_month"`
	LastBilledMonth     model.Month `json:"last_billed_month"`
	MonthsBilled        int         `json:"months_billed"`
	MonthlyPaid         []float64   `json:"monthly_paid"`
	WindowMonths        int         `json:"window_months"`
	BaselineWindowStart model.Month `json:"baseline_window_start"`
	BaselineMean        float64     `json:"baseline_window_mean"`
	PeakWindowStart     model.Month `json:"peak_window_start"`
	PeakMean            float64     `json:"peak_window_mean"`
	MaxGrowthPct        float64     `json:"max_growth_pct"`
	TotalPaidSpan       float64     `json:"total_paid_first_months"`
}

func (EscalationDetail) Kind() Kind        { return RapidEscalation }
func (d EscalationDetail) SortKey() string { return d.FirstBilledMonth.String() }

// RapidEscalationDetector looks for bust-out growth in the first months of
// billing by newly enumerated providers.
type RapidEscalationDetector struct{}

func (RapidEscalationDetector) Kind() Kind { return RapidEscalation }

func (RapidEscalationDetector) Requires() []dataset.Column {
	return []dataset.Column{
		dataset.ProviderNPI, dataset.ProviderEnumerationDate,
		dataset.BillingNPI, dataset.BillingPeriod, dataset.BillingPaid,
	}
}

func (RapidEscalationDetector) Detect(ctx context.Context, env Env) ([]Flag, error) {
	cfg := env.Config.Escalation
	earliest := env.AnalysisDate.AddDate(0, -cfg.LookbackMonths, 0)

	enumerated := make(map[string]time.Time)
	err := scanProviders(ctx, env, func(p *model.Provider) {
		if _, seen := enumerated[p.NPI]; seen {
			return
		}
		d := p.EnumerationDate
		if d.IsZero() || d.After(env.AnalysisDate) || d.Before(earliest) {
			return
		}
		enumerated[p.NPI] = d
	})
	if err != nil {
		return nil, err
	}
	if len(enumerated) == 0 {
		return nil, nil
	}

	monthly := make(map[string]map[model.Month]float64)
	early := make(map[string]struct{})
	err = scanBilling(ctx, env, func(r *model.BillingRecord) {
		d, ok := enumerated[r.NPI]
		if !ok {
			return
		}
		if r.ServicePeriod < model.MonthOf(d) {
			early[r.NPI] = struct{}{}
		}
		months := monthly[r.NPI]
		if months == nil {
			months = make(map[model.Month]float64)
			monthly[r.NPI] = months
		}
		months[r.ServicePeriod] += r.PaidAmountUSD
	})
	if err != nil {
		return nil, err
	}
	if len(early) > 0 {
		env.Log.Warn().Int("providers", len(early)).Msg("billing before enumeration date")
	}

	var flags []Flag
	for npi, months := range monthly {
		detail, overpayment, ok := escalation(months, cfg)
		if !ok || detail.MaxGrowthPct <= cfg.FlagGrowthPct {
			continue
		}
		detail.EnumerationDate = formatDate(enumerated[npi])
		sev := Medium
		if detail.MaxGrowthPct >= cfg.HighGrowthPct {
			sev = High
		}
		flags = append(flags, Flag{
			NPI:                     npi,
			Kind:                    RapidEscalation,
			Severity:                sev,
			EstimatedOverpaymentUSD: RoundCents(overpayment),
			Detail:                  detail,
		})
	}
	sortFlags(flags)
	return flags, nil
}

// escalation builds the zero-filled series of the first SpanMonths calendar
// months from the first billed month and finds the largest ratio between a
// later rolling window and an earlier one. ok is false when the provider has
// too few billed months to evaluate.
func escalation(months map[model.Month]float64, cfg config.EscalationConfig) (EscalationDetail, float64, bool) {
	var first model.Month
	for m := range months {
		if first.IsZero() || m < first {
			first = m
		}
	}
	end := first.AddMonths(cfg.SpanMonths - 1)

	last := first
	billed := 0
	for m := range months {
		if m > end {
			continue
		}
		billed++
		last = max(last, m)
	}
	if billed < cfg.MinMonths {
		return EscalationDetail{}, 0, false
	}

	series := make([]float64, int(last-first)+1)
	var total float64
	for m, paid := range months {
		if m <= end {
			series[m-first] = paid
			total += paid
		}
	}

	w := cfg.WindowMonths
	if len(series) < w {
		return EscalationDetail{}, 0, false
	}
	means := make([]float64, len(series)-w+1)
	for i := range means {
		var sum float64
		for _, v := range series[i : i+w] {
			sum += v
		}
		means[i] = sum / float64(w)
	}

	bestGrowth, base, peak := 0.0, -1, -1
	for i := range means {
		if means[i] <= 0 {
			continue
		}
		for j := i + 1; j < len(means); j++ {
			if g := 100 * means[j] / means[i]; g > bestGrowth {
				bestGrowth, base, peak = g, i, j
			}
		}
	}

	detail := EscalationDetail{
		FirstBilledMonth: first,
		LastBilledMonth:  last,
		MonthsBilled:     billed,
		MonthlyPaid:      roundAll(series),
		WindowMonths:     w,
		MaxGrowthPct:     roundRatio(bestGrowth),
		TotalPaidSpan:    RoundCents(total),
	}
	if base < 0 {
		return detail, 0, true
	}
	detail.BaselineWindowStart = first.AddMonths(base)
	detail.BaselineMean = RoundCents(means[base])
	detail.PeakWindowStart = first.AddMonths(peak)
	detail.PeakMean = RoundCents(means[peak])

	var overpayment float64
	for _, v := range series[peak : peak+w] {
		overpayment += max(0, v-means[base])
	}
	return detail, overpayment, true
}

func roundAll(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = RoundCents(v)
	}
	return out
}
