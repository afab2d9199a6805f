package signals

import (
	"context"
	"slices"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/match"
	"github.com/gyeh/fraud-signals/internal/model"
)

// IdentityByName marks evidence whose grouping relies on a normalized name.
// Two different people with the same normalized name are indistinguishable.
const IdentityByName = "normalized_name"

// SharedOfficialDetail is the evidence for an organization whose authorized
// official also controls many other organizations.
type SharedOfficialDetail struct {
	OfficialName      string   `json:"official_name"`
	IdentityBasis     string   `json:"identity_basis"`
	OrganizationCount int      `json:"organization_count"`
	NPIs              []string `json:"npi_list"`
	States            []string `json:"states"`
	CombinedPaid      float64  `json:"combined_total_paid"`
	CombinedClaims    int64    `json:"combined_total_claims"`
}

func (SharedOfficialDetail) Kind() Kind        { return SharedOfficial }
func (d SharedOfficialDetail) SortKey() string { return d.OfficialName }

// SharedOfficialDetector groups organizations by the normalized name of their
// authorized official and flags every organization in large, high-spend
// groups.
type SharedOfficialDetector struct{}

func (SharedOfficialDetector) Kind() Kind { return SharedOfficial }

func (SharedOfficialDetector) Requires() []dataset.Column {
	return []dataset.Column{
		dataset.ProviderNPI, dataset.ProviderEntityType, dataset.ProviderOfficial,
		dataset.BillingNPI, dataset.BillingPaid, dataset.BillingClaims,
	}
}

type officialGroup struct {
	name   string
	npis   []string
	states map[string]struct{}
	paid   float64
	claims int64
}

func (SharedOfficialDetector) Detect(ctx context.Context, env Env) ([]Flag, error) {
	cfg := env.Config.Official

	groups := make(map[string]*officialGroup)
	seen := make(map[string]struct{})
	err := scanProviders(ctx, env, func(p *model.Provider) {
		if !p.IsOrganization() || p.AuthorizedOfficial == "" {
			return
		}
		if _, dup := seen[p.NPI]; dup {
			return
		}
		seen[p.NPI] = struct{}{}
		key := match.Name(p.AuthorizedOfficial)
		if key == "" {
			return
		}
		g := groups[key]
		if g == nil {
			g = &officialGroup{name: key, states: make(map[string]struct{})}
			groups[key] = g
		}
		g.npis = append(g.npis, p.NPI)
		if st := match.State(p.State); st != "" {
			g.states[st] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}

	controlled := make(map[string]*officialGroup)
	for _, g := range groups {
		if len(g.npis) >= cfg.MinOrganizations {
			for _, npi := range g.npis {
				controlled[npi] = g
			}
		}
	}
	if len(controlled) == 0 {
		return nil, nil
	}

	err = scanBilling(ctx, env, func(r *model.BillingRecord) {
		if g, ok := controlled[r.NPI]; ok {
			g.paid += r.PaidAmountUSD
			g.claims += r.ClaimCount
		}
	})
	if err != nil {
		return nil, err
	}

	var flags []Flag
	for npi, g := range controlled {
		if g.paid <= cfg.MinCombinedPaid {
			continue
		}
		sev := High
		if g.paid >= cfg.CriticalPaid {
			sev = Critical
		}
		npis := slices.Clone(g.npis)
		slices.Sort(npis)
		flags = append(flags, Flag{
			NPI:      npi,
			Kind:     SharedOfficial,
			Severity: sev,
			Detail: SharedOfficialDetail{
				OfficialName:      g.name,
				IdentityBasis:     IdentityByName,
				OrganizationCount: len(g.npis),
				NPIs:              npis,
				States:            sortedKeys(g.states),
				CombinedPaid:      RoundCents(g.paid),
				CombinedClaims:    g.claims,
			},
		})
	}
	sortFlags(flags)
	return flags, nil
}
