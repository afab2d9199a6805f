package dataset

import (
	"fmt"
	"time"

	"github.com/gyeh/fraud-signals/internal/model"
)

// Parquet layouts of the snapshot tables. Dates are "YYYY-MM-DD" strings and
// months "YYYY-MM"; an empty string means unknown.

type billingRow struct {
	NPI                 string  `parquet:"npi"`
	ServicingNPI        string  `parquet:"servicing_npi,optional"`
	ServicePeriod       string  `parquet:"service_period"`
	HCPCSCode           string  `parquet:"hcpcs_code"`
	ClaimCount          int64   `parquet:"claim_count"`
	PaidAmountUSD       float64 `parquet:"paid_amount_usd"`
	UniqueBeneficiaries int64   `parquet:"unique_beneficiary_count"`
}

type providerRow struct {
	NPI                 string `parquet:"npi"`
	Name                string `parquet:"provider_name,optional"`
	EntityType          string `parquet:"entity_type"`
	TaxonomyCode        string `parquet:"taxonomy_code,optional"`
	State               string `parquet:"state,optional"`
	PostalCode          string `parquet:"postal_code,optional"`
	EnumerationDate     string `parquet:"enumeration_date,optional"`
	AuthorizedOfficial  string `parquet:"authorized_official,optional"`
	AffiliatedProviders int64  `parquet:"affiliated_provider_count,optional"`
}

type exclusionRow struct {
	NPI               string `parquet:"npi,optional"`
	Name              string `parquet:"provider_name"`
	State             string `parquet:"state,optional"`
	ExclusionType     string `parquet:"exclusion_type,optional"`
	ExclusionDate     string `parquet:"exclusion_date"`
	ReinstatementDate string `parquet:"reinstatement_date,optional"`
}

func toBillingRow(r model.BillingRecord) billingRow {
	return billingRow{
		NPI:                 r.NPI,
		ServicingNPI:        r.ServicingNPI,
		ServicePeriod:       r.ServicePeriod.String(),
		HCPCSCode:           r.HCPCSCode,
		ClaimCount:          r.ClaimCount,
		PaidAmountUSD:       r.PaidAmountUSD,
		UniqueBeneficiaries: r.UniqueBeneficiaries,
	}
}

func (r billingRow) record() (model.BillingRecord, error) {
	m, err := model.ParseMonth(r.ServicePeriod)
	if err != nil {
		return model.BillingRecord{}, fmt.Errorf("%w: billing row for %s: %v", ErrCorruptInput, r.NPI, err)
	}
	return model.BillingRecord{
		NPI:                 r.NPI,
		ServicingNPI:        r.ServicingNPI,
		ServicePeriod:       m,
		HCPCSCode:           r.HCPCSCode,
		ClaimCount:          r.ClaimCount,
		PaidAmountUSD:       r.PaidAmountUSD,
		UniqueBeneficiaries: r.UniqueBeneficiaries,
	}, nil
}

func toProviderRow(p model.Provider) providerRow {
	return providerRow{
		NPI:                 p.NPI,
		Name:                p.Name,
		EntityType:          string(p.EntityType),
		TaxonomyCode:        p.TaxonomyCode,
		State:               p.State,
		PostalCode:          p.PostalCode,
		EnumerationDate:     formatDate(p.EnumerationDate),
		AuthorizedOfficial:  p.AuthorizedOfficial,
		AffiliatedProviders: p.AffiliatedProviders,
	}
}

func (r providerRow) record() (model.Provider, error) {
	enumerated, err := model.ParseDate(r.EnumerationDate)
	if err != nil {
		return model.Provider{}, fmt.Errorf("%w: provider %s: %v", ErrCorruptInput, r.NPI, err)
	}
	return model.Provider{
		NPI:                 r.NPI,
		Name:                r.Name,
		EntityType:          model.ParseEntityType(r.EntityType),
		TaxonomyCode:        r.TaxonomyCode,
		State:               r.State,
		PostalCode:          r.PostalCode,
		EnumerationDate:     enumerated,
		AuthorizedOfficial:  r.AuthorizedOfficial,
		AffiliatedProviders: r.AffiliatedProviders,
	}, nil
}

func toExclusionRow(e model.ExclusionRecord) exclusionRow {
	return exclusionRow{
		NPI:               e.NPI,
		Name:              e.Name,
		State:             e.State,
		ExclusionType:     e.ExclusionType,
		ExclusionDate:     formatDate(e.ExclusionDate),
		ReinstatementDate: formatDate(e.ReinstatementDate),
	}
}

func (r exclusionRow) record() (model.ExclusionRecord, error) {
	excluded, err := model.ParseDate(r.ExclusionDate)
	if err != nil {
		return model.ExclusionRecord{}, fmt.Errorf("%w: exclusion for %q: %v", ErrCorruptInput, r.Name, err)
	}
	reinstated, err := model.ParseDate(r.ReinstatementDate)
	if err != nil {
		return model.ExclusionRecord{}, fmt.Errorf("%w: exclusion for %q: %v", ErrCorruptInput, r.Name, err)
	}
	return model.ExclusionRecord{
		NPI:               r.NPI,
		Name:              r.Name,
		State:             r.State,
		ExclusionType:     r.ExclusionType,
		ExclusionDate:     excluded,
		ReinstatementDate: reinstated,
	}, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
