package ingest

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gyeh/fraud-signals/internal/model"
)

// Upstream column names.
const (
	spendBillingNPI   = "BILLING_PROVIDER_NPI_NUM"
	spendServicingNPI = "SERVICING_PROVIDER_NPI_NUM"
	spendMonth        = "CLAIM_FROM_MONTH"
	spendHCPCS        = "HCPCS_CODE"
	spendClaims       = "TOTAL_CLAIMS"
	spendPaid         = "TOTAL_PAID"
	spendBenes        = "TOTAL_UNIQUE_BENEFICIARIES"

	leieLast      = "LASTNAME"
	leieFirst     = "FIRSTNAME"
	leieBusiness  = "BUSNAME"
	leieNPI       = "NPI"
	leieState     = "STATE"
	leieType      = "EXCLTYPE"
	leieDate      = "EXCLDATE"
	leieReinstate = "REINDATE"

	nppesNPI           = "NPI"
	nppesEntityType    = "Entity Type Code"
	nppesOrgName       = "Provider Organization Name (Legal Business Name)"
	nppesLastName      = "Provider Last Name (Legal Name)"
	nppesFirstName     = "Provider First Name"
	nppesState         = "Provider Business Practice Location Address State Name"
	nppesPostalCode    = "Provider Business Practice Location Address Postal Code"
	nppesTaxonomy      = "Healthcare Provider Taxonomy Code_1"
	nppesEnumerated    = "Provider Enumeration Date"
	nppesOfficialLast  = "Authorized Official Last Name"
	nppesOfficialFirst = "Authorized Official First Name"

	affOrgNPI = "ORG_NPI"
	affCount  = "PROVIDER_COUNT"
)

var (
	spendingColumns     = []string{spendBillingNPI, spendMonth, spendHCPCS, spendClaims, spendPaid, spendBenes}
	exclusionColumns    = []string{leieLast, leieFirst, leieBusiness, leieNPI, leieDate}
	registryColumns     = []string{nppesNPI, nppesEntityType}
	affiliationsColumns = []string{affOrgNPI, affCount}
)

// Reasons a raw row is dropped.
var (
	errBadNPI    = errors.New("invalid npi")
	errBadMonth  = errors.New("invalid service month")
	errBadDate   = errors.New("invalid date")
	errBadNumber = errors.New("invalid number")
	errNegative  = errors.New("negative amount")
	errNoName    = errors.New("missing name")
)

func billingFrom(r row) (model.BillingRecord, error) {
	var rec model.BillingRecord
	rec.NPI = model.NormalizeNPI(r.get(spendBillingNPI))
	if rec.NPI == "" {
		return rec, errBadNPI
	}
	rec.ServicingNPI = model.NormalizeNPI(r.get(spendServicingNPI))
	m, err := model.ParseMonth(r.get(spendMonth))
	if err != nil {
		return rec, errBadMonth
	}
	rec.ServicePeriod = m
	rec.HCPCSCode = strings.ToUpper(r.get(spendHCPCS))

	claims, err := parseCount(r.get(spendClaims))
	if err != nil {
		return rec, err
	}
	benes, err := parseCount(r.get(spendBenes))
	if err != nil {
		return rec, err
	}
	paid, err := parseAmount(r.get(spendPaid))
	if err != nil {
		return rec, err
	}
	rec.ClaimCount, rec.UniqueBeneficiaries, rec.PaidAmountUSD = claims, benes, paid
	return rec, nil
}

func exclusionFrom(r row) (model.ExclusionRecord, error) {
	var rec model.ExclusionRecord
	rec.NPI = model.NormalizeNPI(r.get(leieNPI))
	rec.Name = strings.ToUpper(r.get(leieBusiness))
	if rec.Name == "" {
		rec.Name = joinName(r.get(leieFirst), r.get(leieLast))
	}
	if rec.Name == "" && rec.NPI == "" {
		return rec, errNoName
	}
	rec.State = strings.ToUpper(r.get(leieState))
	rec.ExclusionType = r.get(leieType)

	d, err := model.ParseDate(r.get(leieDate))
	if err != nil || d.IsZero() {
		return rec, errBadDate
	}
	rec.ExclusionDate = d
	if rec.ReinstatementDate, err = model.ParseDate(r.get(leieReinstate)); err != nil {
		return rec, errBadDate
	}
	return rec, nil
}

func providerFrom(r row, headcounts map[string]int64) (model.Provider, error) {
	var p model.Provider
	p.NPI = model.NormalizeNPI(r.get(nppesNPI))
	if p.NPI == "" {
		return p, errBadNPI
	}
	p.EntityType = model.ParseEntityType(r.get(nppesEntityType))
	if p.IsOrganization() {
		p.Name = strings.ToUpper(r.get(nppesOrgName))
		p.AuthorizedOfficial = joinName(r.get(nppesOfficialFirst), r.get(nppesOfficialLast))
		p.AffiliatedProviders = headcounts[p.NPI]
	} else {
		p.Name = joinName(r.get(nppesFirstName), r.get(nppesLastName))
	}
	p.TaxonomyCode = strings.ToUpper(r.get(nppesTaxonomy))
	p.State = strings.ToUpper(r.get(nppesState))
	p.PostalCode = r.get(nppesPostalCode)
	if len(p.PostalCode) > 5 {
		p.PostalCode = p.PostalCode[:5]
	}
	d, err := model.ParseDate(r.get(nppesEnumerated))
	if err != nil {
		return p, errBadDate
	}
	p.EnumerationDate = d
	return p, nil
}

func affiliationFrom(r row) (string, int64, error) {
	npi := model.NormalizeNPI(r.get(affOrgNPI))
	if npi == "" {
		return "", 0, errBadNPI
	}
	n, err := parseCount(r.get(affCount))
	if err != nil {
		return "", 0, err
	}
	return npi, n, nil
}

func joinName(first, last string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)))
}

// parseCount accepts integers and integral floats ("12", "12.0"). Empty is 0.
func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errNegative
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errBadNumber
	}
	if f < 0 {
		return 0, errNegative
	}
	f = math.Round(f)
	if f >= math.MaxInt64 {
		return 0, errBadNumber
	}
	return int64(f), nil
}

func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errBadNumber
	}
	if f < 0 {
		return 0, errNegative
	}
	return f, nil
}
