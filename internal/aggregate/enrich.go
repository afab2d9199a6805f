package aggregate

import (
	"context"
	"fmt"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
	"github.com/gyeh/fraud-signals/internal/progress"
	"github.com/gyeh/fraud-signals/internal/signals"
)

// Enrich fills in registry identity and ledger totals for providers with one
// pass over each table, and returns the number of distinct billing NPIs.
// Providers missing from the registry keep an unknown entity type.
func Enrich(ctx context.Context, snap dataset.Snapshot, providers []FlaggedProvider, tr progress.Tracker) (int64, error) {
	if tr == nil {
		tr = progress.Nop()
	}
	index := make(map[string]*FlaggedProvider, len(providers))
	for i := range providers {
		index[providers[i].NPI] = &providers[i]
	}

	if len(index) > 0 {
		tr.SetStage("enriching identity")
		named := make(map[string]struct{}, len(index))
		err := snap.ScanProviders(ctx, func(batch []model.Provider) error {
			for i := range batch {
				r := &batch[i]
				p, ok := index[r.NPI]
				if !ok {
					continue
				}
				if _, done := named[r.NPI]; done {
					continue
				}
				named[r.NPI] = struct{}{}
				p.Name = r.Name
				p.EntityType = r.EntityType
				p.TaxonomyCode = r.TaxonomyCode
				p.State = r.State
				if !r.EnumerationDate.IsZero() {
					p.EnumerationDate = r.EnumerationDate.Format("2006-01-02")
				}
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("enriching identity: %w", err)
		}
	}

	tr.SetStage("enriching billing")
	total := snap.NumRows(dataset.Billing)
	var seen int64
	billers := make(map[string]struct{})
	err := snap.ScanBilling(ctx, func(batch []model.BillingRecord) error {
		for i := range batch {
			r := &batch[i]
			billers[r.NPI] = struct{}{}
			p, ok := index[r.NPI]
			if !ok {
				continue
			}
			s := &p.Stats
			s.TotalPaidUSD += r.PaidAmountUSD
			s.TotalClaims += r.ClaimCount
			s.TotalUniqueBeneficiaries += r.UniqueBeneficiaries
			if s.FirstClaimMonth.IsZero() || r.ServicePeriod < s.FirstClaimMonth {
				s.FirstClaimMonth = r.ServicePeriod
			}
			s.LastClaimMonth = max(s.LastClaimMonth, r.ServicePeriod)
		}
		seen += int64(len(batch))
		tr.SetProgress(seen, total)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("enriching billing: %w", err)
	}
	for _, p := range index {
		p.Stats.TotalPaidUSD = signals.RoundCents(p.Stats.TotalPaidUSD)
	}
	tr.SetCounter("providers", int64(len(billers)))
	return int64(len(billers)), nil
}
