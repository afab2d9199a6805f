package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

func TestWorkforce_PeakClaimsBounds(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{
			org("8000000001", "SMALL CLINIC", "NY"),
			org("8000000002", "CLAIM MILL", "NY"),
		},
		Billing: []model.BillingRecord{
			bill("8000000001", "2024-01", "99213", 100, 5000, 80),
			bill("8000000002", "2024-01", "99213", 1500, 15000, 80),
			bill("8000000002", "2024-01", "99214", 500, 5000, 80),
		},
	}
	e, logs := withLog(env(mem))
	flags := detect(t, WorkforceDetector{}, e)
	require.Len(t, flags, 1)
	f := flags[0]
	assert.Equal(t, "8000000002", f.NPI)
	assert.Equal(t, High, f.Severity)

	d := f.Detail.(WorkforceDetail)
	assert.Equal(t, int64(2000), d.PeakMonthlyClaims)
	assert.InDelta(t, 11.36, d.ClaimsPerProviderHour, 0.01)
	assert.Equal(t, int64(1), d.Headcount)
	assert.True(t, d.HeadcountAssumed)
	assert.Equal(t, 1, d.ImpossibleMonths)
	// 20000 × (1 − 1056/2000)
	assert.InDelta(t, 9440.0, f.EstimatedOverpaymentUSD, 0.005)

	assert.Contains(t, logs.String(), "headcount unknown")
}

func TestWorkforce_KnownHeadcount(t *testing.T) {
	big := org("8000000003", "BIG AGENCY", "CA")
	big.AffiliatedProviders = 5
	mem := &dataset.Memory{
		Providers: []model.Provider{big},
		Billing: []model.BillingRecord{
			bill("8000000003", "2024-01", "T1019", 2000, 20000, 80),
			bill("8000000003", "2024-02", "T1019", 6000, 60000, 80),
		},
	}
	flags := detect(t, WorkforceDetector{}, env(mem))
	require.Len(t, flags, 1)
	d := flags[0].Detail.(WorkforceDetail)
	assert.False(t, d.HeadcountAssumed)
	assert.Equal(t, month("2024-02"), d.PeakMonth)
	assert.Equal(t, 1, d.ImpossibleMonths)
	assert.InDelta(t, 6.818, d.ClaimsPerProviderHour, 0.001)
	// plausible = 6 × 8 × 22 × 5 = 5280
	assert.InDelta(t, 60000*(1-5280.0/6000), flags[0].EstimatedOverpaymentUSD, 0.005)
}

func TestWorkforce_IndividualsIgnored(t *testing.T) {
	mem := &dataset.Memory{
		Providers: []model.Provider{person("8000000004", "BUSY DOCTOR", "TX")},
		Billing:   []model.BillingRecord{bill("8000000004", "2024-01", "99213", 5000, 50000, 10)},
	}
	assert.Empty(t, detect(t, WorkforceDetector{}, env(mem)))
}

func TestWorkforce_OnlyEmitsHigh(t *testing.T) {
	mem := &dataset.Memory{Providers: []model.Provider{org("8000000005", "X", "NY")}}
	for _, claims := range []int64{1057, 2000, 1_000_000} {
		mem.Billing = []model.BillingRecord{bill("8000000005", "2024-03", "T1019", claims, 1, 1)}
		flags := detect(t, WorkforceDetector{}, env(mem))
		require.Len(t, flags, 1, "claims=%d", claims)
		assert.Equal(t, High, flags[0].Severity)
	}
	mem.Billing = []model.BillingRecord{bill("8000000005", "2024-03", "T1019", 1056, 1, 1)}
	assert.Empty(t, detect(t, WorkforceDetector{}, env(mem)))
}
