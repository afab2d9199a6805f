package signals

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
	"github.com/gyeh/fraud-signals/internal/quantile"
)

// OutlierDetail is the evidence for a provider whose all-time paid total sits
// above its peer group's percentile threshold.
type OutlierDetail struct {
	TaxonomyCode     string  `json:"taxonomy_code"`
	State            string  `json:"state"`
	PeerCount        int     `json:"peer_count"`
	Percentile       float64 `json:"percentile"`
	RelativeAccuracy float64 `json:"relative_accuracy"`
	Threshold        float64 `json:"threshold_paid"`
	PeerMedian       float64 `json:"median_paid"`
	RatioToMedian    float64 `json:"ratio_to_median"`
	TotalPaid        float64 `json:"total_paid"`
	TotalClaims      int64   `json:"total_claims"`
}

func (OutlierDetail) Kind() Kind        { return BillingOutlier }
func (d OutlierDetail) SortKey() string { return d.TaxonomyCode + "|" + d.State }

// BillingOutlierDetector compares each provider's all-time paid total with
// the distribution of its (taxonomy, state) peer group.
type BillingOutlierDetector struct{}

func (BillingOutlierDetector) Kind() Kind { return BillingOutlier }

func (BillingOutlierDetector) Requires() []dataset.Column {
	return []dataset.Column{
		dataset.BillingNPI, dataset.BillingPaid, dataset.BillingClaims,
		dataset.ProviderNPI, dataset.ProviderTaxonomy, dataset.ProviderState,
	}
}

type peerKey struct {
	taxonomy string
	state    string
}

type providerTotal struct {
	paid    float64
	claims  int64
	grouped bool
}

type peerMember struct {
	npi string
	*providerTotal
}

func (BillingOutlierDetector) Detect(ctx context.Context, env Env) ([]Flag, error) {
	cfg := env.Config.Outlier

	totals := make(map[string]*providerTotal)
	err := scanBilling(ctx, env, func(r *model.BillingRecord) {
		t := totals[r.NPI]
		if t == nil {
			t = &providerTotal{}
			totals[r.NPI] = t
		}
		t.paid += r.PaidAmountUSD
		t.claims += r.ClaimCount
	})
	if err != nil {
		return nil, err
	}

	// First registry row per NPI decides its peer group; a provider is never
	// counted in two groups.
	groups := make(map[peerKey][]peerMember)
	var ungrouped int
	err = scanProviders(ctx, env, func(p *model.Provider) {
		t, ok := totals[p.NPI]
		if !ok || t.grouped {
			return
		}
		t.grouped = true
		key := peerKey{taxonomy: strings.TrimSpace(p.TaxonomyCode), state: strings.TrimSpace(p.State)}
		if key.taxonomy == "" || key.state == "" {
			ungrouped++
			return
		}
		groups[key] = append(groups[key], peerMember{npi: p.NPI, providerTotal: t})
	})
	if err != nil {
		return nil, err
	}

	env.tracker().SetStage("scoring peer groups")
	var flags []Flag
	var skipped int
	for key, members := range groups {
		if len(members) < cfg.MinPeerGroupSize {
			skipped++
			continue
		}
		groupFlags, err := scoreGroup(key, members, env)
		if err != nil {
			return nil, fmt.Errorf("peer group %s/%s: %w", key.taxonomy, key.state, err)
		}
		flags = append(flags, groupFlags...)
	}
	env.Log.Debug().
		Int("groups", len(groups)).
		Int("small_groups_skipped", skipped).
		Int("providers_without_peer_key", ungrouped).
		Msg("peer groups scored")

	sortFlags(flags)
	return flags, nil
}

func scoreGroup(key peerKey, members []peerMember, env Env) ([]Flag, error) {
	cfg := env.Config.Outlier
	sketch, err := quantile.New(cfg.RelativeAccuracy)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := sketch.Add(max(m.paid, 0)); err != nil {
			return nil, err
		}
	}
	threshold, err := sketch.UpperBound(cfg.Percentile)
	if err != nil {
		return nil, err
	}
	median, err := sketch.Quantile(0.5)
	if err != nil {
		return nil, err
	}

	var flags []Flag
	for _, m := range members {
		if m.paid <= threshold {
			continue
		}
		sev := Medium
		if m.paid > cfg.HighMultiple*threshold {
			sev = High
		}
		var ratio float64
		if median > 0 {
			ratio = m.paid / median
		}
		flags = append(flags, Flag{
			NPI:                     m.npi,
			Kind:                    BillingOutlier,
			Severity:                sev,
			EstimatedOverpaymentUSD: RoundCents(m.paid - threshold),
			Detail: OutlierDetail{
				TaxonomyCode:     key.taxonomy,
				State:            key.state,
				PeerCount:        len(members),
				Percentile:       cfg.Percentile,
				RelativeAccuracy: cfg.RelativeAccuracy,
				Threshold:        RoundCents(threshold),
				PeerMedian:       RoundCents(median),
				RatioToMedian:    roundRatio(ratio),
				TotalPaid:        RoundCents(m.paid),
				TotalClaims:      m.claims,
			},
		})
	}
	return flags, nil
}

func roundRatio(v float64) float64 {
	return math.Round(v*10000) / 10000
}
