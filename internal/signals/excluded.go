package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/match"
	"github.com/gyeh/fraud-signals/internal/model"
)

// Exclusion match confidence.
const (
	ConfidenceDirect    = "direct"
	ConfidenceNameMatch = "name_match"
)

// Ledger column through which an excluded NPI was paid.
const (
	RoleBilling   = "billing"
	RoleServicing = "servicing"
)

// ExcludedDetail is the evidence for an excluded provider billing after the
// exclusion took effect.
type ExcludedDetail struct {
	Confidence           string      `json:"confidence"`
	MatchRole            string      `json:"match_role"`
	ExcludedName         string      `json:"excluded_name"`
	MatchedName          string      `json:"matched_name,omitempty"`
	ExclusionState       string      `json:"exclusion_state,omitempty"`
	ExclusionType        string      `json:"exclusion_type,omitempty"`
	ExclusionDate        string      `json:"exclusion_date"`
	ReinstatementDate    string      `json:"reinstatement_date,omitempty"`
	MatchMode            string      `json:"match_mode"`
	PaidAfterExclusion   float64     `json:"total_paid_after_exclusion"`
	ClaimsAfterExclusion int64       `json:"total_claims_after_exclusion"`
	FirstClaimMonth      model.Month `json:"first_claim_month"`
	LastClaimMonth       model.Month `json:"last_claim_month"`
	MonthsBilled         int         `json:"months_billed"`
}

func (ExcludedDetail) Kind() Kind        { return ExcludedProvider }
func (d ExcludedDetail) SortKey() string {
	return d.Confidence + "|" + d.MatchRole + "|" + d.ExclusionDate
}

// ExcludedProviderDetector resolves exclusion records to NPIs, first by NPI
// and, for records without one, by normalized name and state against the
// registry. Payments count whether the NPI appears as the billing or the
// servicing provider; the servicing column is optional.
type ExcludedProviderDetector struct{}

func (ExcludedProviderDetector) Kind() Kind { return ExcludedProvider }

func (ExcludedProviderDetector) Requires() []dataset.Column {
	return []dataset.Column{
		dataset.ExclusionNPI, dataset.ExclusionName, dataset.ExclusionDate,
		dataset.ProviderNPI, dataset.ProviderName,
		dataset.BillingNPI, dataset.BillingPeriod, dataset.BillingClaims, dataset.BillingPaid,
	}
}

// exclusionWindow is the period during which an NPI may not bill.
type exclusionWindow struct {
	confidence  string
	name        string
	matchedName string
	state       string
	kind        string
	excluded    time.Time
	reinstated  time.Time
}

func (w exclusionWindow) covers(m model.Month, mode string) bool {
	start := model.MonthOf(w.excluded)
	if mode == config.MatchOverlap {
		if m < start {
			return false
		}
	} else if m <= start {
		return false
	}
	return w.reinstated.IsZero() || m < model.MonthOf(w.reinstated)
}

// keepEarliest collapses several exclusions for the same NPI to the one that
// took effect first.
func keepEarliest(m map[string]exclusionWindow, npi string, w exclusionWindow) {
	if cur, ok := m[npi]; ok && !w.excluded.Before(cur.excluded) {
		return
	}
	m[npi] = w
}

type evidenceKey struct {
	npi        string
	role       string
	confidence string
}

type postExclusion struct {
	paid   float64
	claims int64
	first  model.Month
	last   model.Month
	months monthSet
}

func (ExcludedProviderDetector) Detect(ctx context.Context, env Env) ([]Flag, error) {
	log := env.Log
	mode := env.Config.Excluded.Match

	direct := make(map[string]exclusionWindow)
	byName := make(map[string]exclusionWindow)
	ix := match.NewIndex()
	var undated, lifted int

	env.tracker().SetStage("reading exclusions")
	err := env.Snapshot.ScanExclusions(ctx, func(batch []model.ExclusionRecord) error {
		for _, e := range batch {
			if e.ExclusionDate.IsZero() {
				undated++
				continue
			}
			if e.Reinstated() && model.MonthOf(e.ReinstatementDate) <= model.MonthOf(e.ExclusionDate) {
				lifted++
				continue
			}
			w := exclusionWindow{
				name:       e.Name,
				state:      match.State(e.State),
				kind:       e.ExclusionType,
				excluded:   e.ExclusionDate,
				reinstated: e.ReinstatementDate,
			}
			if e.HasNPI() {
				w.confidence = ConfidenceDirect
				keepEarliest(direct, model.NormalizeNPI(e.NPI), w)
				continue
			}
			key := match.Key(e.Name, e.State)
			if key == "" {
				continue
			}
			w.confidence = ConfidenceNameMatch
			keepEarliest(byName, key, w)
			ix.Want(key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading exclusions: %w", err)
	}
	if undated > 0 {
		log.Warn().Int("count", undated).Msg("exclusions without an exclusion date skipped")
	}
	if lifted > 0 {
		log.Debug().Int("count", lifted).Msg("exclusions reinstated within their exclusion month skipped")
	}

	// Tier 2: every registry NPI whose normalized name and state equal an
	// exclusion key is a candidate.
	tier2 := make(map[string]exclusionWindow)
	if len(byName) > 0 {
		names := make(map[string]string)
		err := scanProviders(ctx, env, func(p *model.Provider) {
			key := match.Key(p.Name, p.State)
			if key == "" || !ix.Wants(key) {
				return
			}
			ix.Add(key, p.NPI)
			if _, ok := names[p.NPI]; !ok {
				names[p.NPI] = p.Name
			}
		})
		if err != nil {
			return nil, fmt.Errorf("matching exclusions by name: %w", err)
		}
		for _, key := range sortedKeys(byName) {
			for _, npi := range ix.Candidates(key) {
				w := byName[key]
				w.matchedName = names[npi]
				keepEarliest(tier2, npi, w)
			}
		}
		log.Debug().Int("keys", len(byName)).Int("candidates", len(tier2)).Msg("name index built")
	}
	if len(direct) == 0 && len(tier2) == 0 {
		return nil, nil
	}

	billed := make(map[evidenceKey]*postExclusion)
	add := func(k evidenceKey, r *model.BillingRecord) {
		agg := billed[k]
		if agg == nil {
			agg = &postExclusion{first: r.ServicePeriod, last: r.ServicePeriod, months: make(monthSet)}
			billed[k] = agg
		}
		agg.paid += r.PaidAmountUSD
		agg.claims += r.ClaimCount
		agg.first = min(agg.first, r.ServicePeriod)
		agg.last = max(agg.last, r.ServicePeriod)
		agg.months.add(r.ServicePeriod)
	}
	resolve := func(npi, role string, r *model.BillingRecord) {
		if w, ok := direct[npi]; ok && w.covers(r.ServicePeriod, mode) {
			add(evidenceKey{npi, role, ConfidenceDirect}, r)
		}
		if w, ok := tier2[npi]; ok && w.covers(r.ServicePeriod, mode) {
			add(evidenceKey{npi, role, ConfidenceNameMatch}, r)
		}
	}
	err = scanBilling(ctx, env, func(r *model.BillingRecord) {
		resolve(r.NPI, RoleBilling, r)
		// A row whose servicing NPI is its billing NPI is already counted.
		if r.ServicingNPI != "" && r.ServicingNPI != r.NPI {
			resolve(r.ServicingNPI, RoleServicing, r)
		}
	})
	if err != nil {
		return nil, err
	}

	// A direct match wins over a name match once it has produced evidence.
	hasDirect := make(map[string]bool)
	for k := range billed {
		if k.confidence == ConfidenceDirect {
			hasDirect[k.npi] = true
		}
	}

	flags := make([]Flag, 0, len(billed))
	for k, agg := range billed {
		w := direct[k.npi]
		if k.confidence == ConfidenceNameMatch {
			if hasDirect[k.npi] {
				continue
			}
			w = tier2[k.npi]
		}
		flags = append(flags, Flag{
			NPI:                     k.npi,
			Kind:                    ExcludedProvider,
			Severity:                Critical,
			EstimatedOverpaymentUSD: RoundCents(agg.paid),
			Detail: ExcludedDetail{
				Confidence:           w.confidence,
				MatchRole:            k.role,
				ExcludedName:         w.name,
				MatchedName:          w.matchedName,
				ExclusionState:       w.state,
				ExclusionType:        w.kind,
				ExclusionDate:        formatDate(w.excluded),
				ReinstatementDate:    formatDate(w.reinstated),
				MatchMode:            mode,
				PaidAfterExclusion:   RoundCents(agg.paid),
				ClaimsAfterExclusion: agg.claims,
				FirstClaimMonth:      agg.first,
				LastClaimMonth:       agg.last,
				MonthsBilled:         len(agg.months),
			},
		})
	}
	sortFlags(flags)
	return flags, nil
}
