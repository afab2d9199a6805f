package dataset

import (
	"context"
	"errors"

	"github.com/gyeh/fraud-signals/internal/model"
)

// Load-time failures. Callers test for them with errors.Is.
var (
	ErrMissingInput   = errors.New("missing input")
	ErrCorruptInput   = errors.New("corrupt input")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// BatchSize is the number of rows handed to a scan callback at a time.
const BatchSize = 8192

// Table names a snapshot table.
type Table string

const (
	Billing    Table = "billing"
	Providers  Table = "providers"
	Exclusions Table = "exclusions"
)

// FileName returns the table's file name inside a snapshot directory.
func (t Table) FileName() string { return string(t) + ".parquet" }

// Column identifies one column of a snapshot table.
type Column struct {
	Table Table
	Name  string
}

func (c Column) String() string { return string(c.Table) + "." + c.Name }

// Canonical columns.
var (
	BillingNPI           = Column{Billing, "npi"}
	BillingServicingNPI  = Column{Billing, "servicing_npi"}
	BillingPeriod        = Column{Billing, "service_period"}
	BillingHCPCS         = Column{Billing, "hcpcs_code"}
	BillingClaims        = Column{Billing, "claim_count"}
	BillingPaid          = Column{Billing, "paid_amount_usd"}
	BillingBeneficiaries = Column{Billing, "unique_beneficiary_count"}

	ProviderNPI             = Column{Providers, "npi"}
	ProviderName            = Column{Providers, "provider_name"}
	ProviderEntityType      = Column{Providers, "entity_type"}
	ProviderTaxonomy        = Column{Providers, "taxonomy_code"}
	ProviderState           = Column{Providers, "state"}
	ProviderPostalCode      = Column{Providers, "postal_code"}
	ProviderEnumerationDate = Column{Providers, "enumeration_date"}
	ProviderOfficial        = Column{Providers, "authorized_official"}
	ProviderAffiliated      = Column{Providers, "affiliated_provider_count"}

	ExclusionNPI           = Column{Exclusions, "npi"}
	ExclusionName          = Column{Exclusions, "provider_name"}
	ExclusionState         = Column{Exclusions, "state"}
	ExclusionType          = Column{Exclusions, "exclusion_type"}
	ExclusionDate          = Column{Exclusions, "exclusion_date"}
	ExclusionReinstatement = Column{Exclusions, "reinstatement_date"}
)

// required lists the columns a table must carry to be opened at all. The
// rest are optional at load time; detectors that need them declare so and
// are checked before they run.
var required = map[Table][]Column{
	Billing:    {BillingNPI, BillingPeriod, BillingHCPCS, BillingClaims, BillingPaid, BillingBeneficiaries},
	Providers:  {ProviderNPI, ProviderEntityType},
	Exclusions: {ExclusionNPI, ExclusionName, ExclusionDate},
}

// Snapshot is a read-only view of the three datasets. Scans deliver rows in
// batches; a callback must not retain the slice after it returns. All methods
// are safe for concurrent use.
type Snapshot interface {
	ScanBilling(ctx context.Context, fn func([]model.BillingRecord) error) error
	ScanProviders(ctx context.Context, fn func([]model.Provider) error) error
	ScanExclusions(ctx context.Context, fn func([]model.ExclusionRecord) error) error

	// NumRows returns the row count of t, or -1 when unknown.
	NumRows(t Table) int64

	// HasColumn reports whether the snapshot carries c.
	HasColumn(c Column) bool
}
