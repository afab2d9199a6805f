package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

func newProvider(npi string, enumerated time.Time) model.Provider {
	return model.Provider{NPI: npi, EntityType: model.EntityOrganization, EnumerationDate: enumerated}
}

func series(npi, start string, paid ...float64) []model.BillingRecord {
	var out []model.BillingRecord
	m := month(start)
	for i, p := range paid {
		out = append(out, bill(npi, m.AddMonths(i).String(), "T1019", 10, p, 5))
	}
	return out
}

func TestRapidEscalation_HighGrowth(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{newProvider("7000000001", date("2024-09-01"))},
		Billing:   series("7000000001", "2024-10", 1000, 1000, 1000, 5000, 5000, 5000),
	}
	flags := detect(t, RapidEscalationDetector{}, env(mem))
	require.Len(t, flags, 1)
	f := flags[0]
	assert.Equal(t, High, f.Severity)
	assert.Equal(t, 12000.0, f.EstimatedOverpaymentUSD)

	d := f.Detail.(EscalationDetail)
	assert.Equal(t, 500.0, d.MaxGrowthPct)
	assert.Equal(t, month("2024-10"), d.BaselineWindowStart)
	assert.Equal(t, month("2025-01"), d.PeakWindowStart)
	assert.Equal(t, 1000.0, d.BaselineMean)
	assert.Equal(t, 5000.0, d.PeakMean)
	assert.Equal(t, "2024-09-01", d.EnumerationDate)
	assert.Equal(t, 6, d.MonthsBilled)
	assert.Equal(t, 18000.0, d.TotalPaidSpan)
}

func TestRapidEscalation_MediumGrowth(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{newProvider("7000000001", date("2024-09-01"))},
		Billing:   series("7000000001", "2024-10", 1000, 1000, 1000, 2500, 2500, 2500),
	}
	flags := detect(t, RapidEscalationDetector{}, env(mem))
	require.Len(t, flags, 1)
	assert.Equal(t, Medium, flags[0].Severity)
	assert.Equal(t, 250.0, flags[0].Detail.(EscalationDetail).MaxGrowthPct)
	assert.Equal(t, 4500.0, flags[0].EstimatedOverpaymentUSD)
}

func TestRapidEscalation_GrowthAtOrBelowThresholdNotFlagged(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{
			newProvider("7000000001", date("2024-09-01")),
			newProvider("7000000002", date("2024-09-01")),
		},
		Billing: append(
			series("7000000001", "2024-10", 1000, 1000, 1000, 1500, 1500, 1500),
			series("7000000002", "2024-10", 1000, 1000, 1000, 2000, 2000, 2000)...,
		),
	}
	assert.Empty(t, detect(t, RapidEscalationDetector{}, env(mem)))
}

func TestRapidEscalation_FewerThanThreeMonthsExcluded(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{newProvider("7000000001", date("2024-09-01"))},
		Billing: []model.BillingRecord{
			bill("7000000001", "2024-10", "T1019", 1, 10, 1),
			bill("7000000001", "2025-03", "T1019", 1, 100_000, 1),
		},
	}
	assert.Empty(t, detect(t, RapidEscalationDetector{}, env(mem)))
}

func TestRapidEscalation_OnlyRecentlyEnumerated(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{
			newProvider("7000000001", date("2015-01-01")),
			newProvider("7000000002", time.Time{}),
			newProvider("7000000003", date("2025-12-01")),
		},
		Billing: append(append(
			series("7000000001", "2024-10", 1000, 1000, 1000, 9000, 9000, 9000),
			series("7000000002", "2024-10", 1000, 1000, 1000, 9000, 9000, 9000)...),
			series("7000000003", "2024-10", 1000, 1000, 1000, 9000, 9000, 9000)...),
	}
	assert.Empty(t, detect(t, RapidEscalationDetector{}, env(mem)))
}

func TestRapidEscalation_ZeroFillsMissingMonths(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{newProvider("7000000001", date("2024-09-01"))},
		Billing: []model.BillingRecord{
			bill("7000000001", "2024-10", "T1019", 1, 1000, 1),
			bill("7000000001", "2024-11", "T1019", 1, 1000, 1),
			bill("7000000001", "2025-02", "T1019", 1, 9000, 1),
			bill("7000000001", "2025-03", "T1019", 1, 9000, 1),
		},
	}
	flags := detect(t, RapidEscalationDetector{}, env(mem))
	require.Len(t, flags, 1)
	d := flags[0].Detail.(EscalationDetail)
	assert.Equal(t, []float64{1000, 1000, 0, 0, 9000, 9000}, d.MonthlyPaid)
	assert.InDelta(t, 1800.0, d.MaxGrowthPct, 0.001)
	assert.Equal(t, month("2024-11"), d.BaselineWindowStart)
	assert.Equal(t, month("2025-01"), d.PeakWindowStart)
}

func TestRapidEscalation_IgnoresMonthsBeyondSpan(t *testing.T) {
	paid := []float64{1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 50_000, 50_000, 50_000}
	mem := &dataset.Memory{
		Providers: []model.Provider{newProvider("7000000001", date("2023-09-01"))},
		Billing:   series("7000000001", "2023-10", paid...),
	}
	assert.Empty(t, detect(t, RapidEscalationDetector{}, env(mem)))
}

func TestRapidEscalation_WarnsOnBillingBeforeEnumeration(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{newProvider("7000000001", date("2024-11-15"))},
		Billing:   series("7000000001", "2024-10", 1000, 1000, 1000, 5000, 5000, 5000),
	}
	e, logs := withLog(env(mem))
	flags := detect(t, RapidEscalationDetector{}, e)
	assert.Len(t, flags, 1)
	assert.Contains(t, logs.String(), "billing before enumeration date")
	assert.Contains(t, logs.String(), `"providers":1`)
}
