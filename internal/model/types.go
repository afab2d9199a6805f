package model

import "time"

// EntityType distinguishes individual practitioners from organizations.
type EntityType string

const (
	EntityIndividual   EntityType = "individual"
	EntityOrganization EntityType = "organization"
	EntityUnknown      EntityType = "unknown"
)

// ParseEntityType maps NPPES entity type codes ("1", "2") and canonical names
// to an EntityType.
func ParseEntityType(s string) EntityType {
	switch s {
	case "1", string(EntityIndividual):
		return EntityIndividual
	case "2", string(EntityOrganization):
		return EntityOrganization
	}
	return EntityUnknown
}

// Provider is one NPPES registry entry.
type Provider struct {
	NPI             string
	Name            string // "FIRST LAST" for individuals, legal business name for organizations
	EntityType      EntityType
	TaxonomyCode    string // primary taxonomy, e.g. "207Q00000X"
	State           string // practice location state
	PostalCode      string
	EnumerationDate time.Time // zero when unknown

	// AuthorizedOfficial is "FIRST LAST" of the organization's authorized
	// official. Empty for individuals.
	AuthorizedOfficial string

	// AffiliatedProviders is the organization's known rendering-provider
	// headcount. 0 means unknown.
	AffiliatedProviders int64
}

// IsOrganization reports whether p is an organization (NPPES entity type 2).
func (p Provider) IsOrganization() bool {
	return p.EntityType == EntityOrganization
}

// BillingRecord is one aggregated ledger row: provider × month × HCPCS code.
type BillingRecord struct {
	NPI                 string // billing provider
	ServicingNPI        string // may be empty
	ServicePeriod       Month
	HCPCSCode           string
	ClaimCount          int64
	PaidAmountUSD       float64
	UniqueBeneficiaries int64
}

// ExclusionRecord is one OIG LEIE entry.
type ExclusionRecord struct {
	NPI               string // empty when LEIE has no NPI on file
	Name              string
	State             string
	ExclusionType     string // e.g. "1128a1"
	ExclusionDate     time.Time
	ReinstatementDate time.Time // zero when never reinstated
}

// HasNPI reports whether the exclusion carries a usable NPI.
func (e ExclusionRecord) HasNPI() bool {
	return NormalizeNPI(e.NPI) != ""
}

// Reinstated reports whether the exclusion was lifted.
func (e ExclusionRecord) Reinstated() bool {
	return !e.ReinstatementDate.IsZero()
}
