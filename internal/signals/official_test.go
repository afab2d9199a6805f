package signals

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/fraud-signals/internal/dataset"
)

// controlledOrgs adds n organizations run by official, each paid paidEach.
func controlledOrgs(mem *dataset.Memory, prefix string, officials []string, paidEach float64) {
	for i, official := range officials {
		p := org(fmt.Sprintf("%s%02d", prefix, i), fmt.Sprintf("AGENCY %d", i), []string{"NY", "NJ"}[i%2])
		p.AuthorizedOfficial = official
		mem.Providers = append(mem.Providers, p)
		mem.Billing = append(mem.Billing, bill(p.NPI, "2024-01", "T1019", 100, paidEach, 20))
	}
}

func TestSharedOfficial_GroupsNameVariants(t *testing.T) {
	mem := &dataset.Memory{}
	controlledOrgs(mem, "90000000", []string{
		"John O'Brien", "JOHN OBRIEN", "john  obrien", "Jöhn O’Brien", "JOHN OBRIEN",
	}, 400_000)

	flags := detect(t, SharedOfficialDetector{}, env(mem))
	require.Len(t, flags, 5)
	for _, f := range flags {
		assert.Equal(t, High, f.Severity)
		assert.Zero(t, f.EstimatedOverpaymentUSD)
		d := f.Detail.(SharedOfficialDetail)
		assert.Equal(t, "JOHN OBRIEN", d.OfficialName)
		assert.Equal(t, IdentityByName, d.IdentityBasis)
		assert.Equal(t, 5, d.OrganizationCount)
		assert.Equal(t, 2_000_000.0, d.CombinedPaid)
		assert.Equal(t, int64(500), d.CombinedClaims)
		assert.Equal(t, []string{"NJ", "NY"}, d.States)
		assert.Contains(t, d.NPIs, f.NPI)
		assert.IsIncreasing(t, d.NPIs)
	}
}

func TestSharedOfficial_Thresholds(t *testing.T) {
	five := []string{"A B", "A B", "A B", "A B", "A B"}
	tests := []struct {
		name      string
		officials []string
		paidEach  float64
		want      Severity
	}{
		{name: "too few organizations", officials: five[:4], paidEach: 1_000_000, want: SeverityNone},
		{name: "combined paid too low", officials: five, paidEach: 180_000, want: SeverityNone},
		{name: "exactly the paid floor", officials: five, paidEach: 200_000, want: SeverityNone},
		{name: "high", officials: five, paidEach: 500_000, want: High},
		{name: "critical", officials: five, paidEach: 1_200_000, want: Critical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := &dataset.Memory{}
			controlledOrgs(mem, "91000000", tt.officials, tt.paidEach)
			flags := detect(t, SharedOfficialDetector{}, env(mem))
			if tt.want == SeverityNone {
				assert.Empty(t, flags)
				return
			}
			require.Len(t, flags, len(tt.officials))
			for _, f := range flags {
				assert.Equal(t, tt.want, f.Severity)
			}
		})
	}
}

func TestSharedOfficial_IgnoresIndividualsAndDuplicateRows(t *testing.T) {
	mem := &dataset.Memory{}
	controlledOrgs(mem, "92000000", []string{"JANE DOE", "JANE DOE", "JANE DOE", "JANE DOE"}, 1_000_000)
	// A repeated registry row and an individual do not make a fifth organization.
	mem.Providers = append(mem.Providers, mem.Providers[0])
	solo := person("9200000099", "JANE DOE", "NY")
	solo.AuthorizedOfficial = "JANE DOE"
	mem.Providers = append(mem.Providers, solo)
	mem.Billing = append(mem.Billing, bill(solo.NPI, "2024-01", "T1019", 1, 5_000_000, 1))

	assert.Empty(t, detect(t, SharedOfficialDetector{}, env(mem)))
}
