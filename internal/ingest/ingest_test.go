package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

const spendingCSV = `BILLING_PROVIDER_NPI_NUM,SERVICING_PROVIDER_NPI_NUM,HCPCS_CODE,CLAIM_FROM_MONTH,TOTAL_UNIQUE_BENEFICIARIES,TOTAL_CLAIMS,TOTAL_PAID
1234567890,1234567891,t1019,2024-01-01,12,30.0,1500.25
1234567890,,99213,2024-02,5,7,350
BAD,,99213,2024-02,5,7,350
1234567890,,99213,not-a-month,5,7,350
1234567890,,99213,2024-03,5,7,-10
`

const leieCSV = `LASTNAME,FIRSTNAME,MIDNAME,BUSNAME,GENERAL,SPECIALTY,UPIN,NPI,DOB,ADDRESS,CITY,STATE,ZIP,EXCLTYPE,EXCLDATE,REINDATE,WAIVERDATE,WVRSTATE
SMITH,JOHN,Q,,IND,NURSE,,0000000000,19600101,1 MAIN,ALBANY,ny,12207,1128a1,20190620,00000000,00000000,
,,,ACME HOME CARE LLC,BUS,HOME HEALTH,,1234567890,,2 MAIN,ALBANY,NY,12207,1128b4,20200115,20230101,00000000,
DOE,JANE,,,IND,,,,19700101,,,CA,,1128a1,,00000000,00000000,
`

const nppesCSV = `"NPI","Entity Type Code","Replacement NPI","Provider Organization Name (Legal Business Name)","Provider Last Name (Legal Name)","Provider First Name","Provider Business Practice Location Address State Name","Provider Business Practice Location Address Postal Code","Provider Enumeration Date","Authorized Official Last Name","Authorized Official First Name","Healthcare Provider Taxonomy Code_1"
"1234567890","2","","Acme Home Care LLC","","","NY","122071234","03/15/2023","O'Brien","John","251E00000X"
"1234567891","1","","","Smith","John","NY","12207","05/01/2010","","","163W00000X"
"12345","1","","","Short","Npi","NY","12207","05/01/2010","","","163W00000X"
`

const affiliationsCSV = `ORG_NPI,PROVIDER_COUNT
1234567890,4
`

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func fixtures(t *testing.T) (string, Sources) {
	t.Helper()
	dir := t.TempDir()
	src := Sources{
		Spending:     filepath.Join(dir, "spending.csv.gz"),
		Exclusions:   filepath.Join(dir, "UPDATED.csv"),
		Registry:     filepath.Join(dir, "nppes.zip"),
		Affiliations: filepath.Join(dir, "affiliations.csv"),
	}
	writeGzip(t, src.Spending, spendingCSV)
	require.NoError(t, os.WriteFile(src.Exclusions, []byte(leieCSV), 0o644))
	writeZip(t, src.Registry, map[string]string{
		"npidata_pfile_20050523-20260208_FileHeader.csv": strings.SplitN(nppesCSV, "\n", 2)[0] + "\n",
		"npidata_pfile_20050523-20260208.csv":            nppesCSV,
		"othername_pfile.txt":                            "ignored",
	})
	require.NoError(t, os.WriteFile(src.Affiliations, []byte(affiliationsCSV), 0o644))
	return dir, src
}

func readSnapshot(t *testing.T, dir string) ([]model.BillingRecord, []model.Provider, []model.ExclusionRecord) {
	t.Helper()
	snap, err := dataset.Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	var b []model.BillingRecord
	var p []model.Provider
	var e []model.ExclusionRecord
	require.NoError(t, snap.ScanBilling(ctx, func(batch []model.BillingRecord) error { b = append(b, batch...); return nil }))
	require.NoError(t, snap.ScanProviders(ctx, func(batch []model.Provider) error { p = append(p, batch...); return nil }))
	require.NoError(t, snap.ScanExclusions(ctx, func(batch []model.ExclusionRecord) error { e = append(e, batch...); return nil }))
	return b, p, e
}

func month(t *testing.T, s string) model.Month {
	m, err := model.ParseMonth(s)
	require.NoError(t, err)
	return m
}

func TestRun_LocalSources(t *testing.T) {
	dir, src := fixtures(t)
	out := filepath.Join(dir, "data")
	var logs bytes.Buffer

	stats, err := Run(context.Background(), Options{Sources: src, OutDir: out, TmpDir: dir, Log: zerolog.New(&logs)})
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, int64(2), stats[0].Rows)
	assert.Equal(t, map[string]int{"invalid npi": 1, "invalid service month": 1, "negative amount": 1}, stats[0].Dropped)
	assert.Equal(t, map[string]int{"invalid date": 1}, stats[1].Dropped)
	assert.Equal(t, map[string]int{"invalid npi": 1}, stats[2].Dropped)
	assert.Contains(t, logs.String(), `"negative_amount":1`)

	billing, providers, exclusions := readSnapshot(t, out)
	assert.Equal(t, []model.BillingRecord{
		{NPI: "1234567890", ServicingNPI: "1234567891", ServicePeriod: month(t, "2024-01"), HCPCSCode: "T1019", ClaimCount: 30, PaidAmountUSD: 1500.25, UniqueBeneficiaries: 12},
		{NPI: "1234567890", ServicePeriod: month(t, "2024-02"), HCPCSCode: "99213", ClaimCount: 7, PaidAmountUSD: 350, UniqueBeneficiaries: 5},
	}, billing)

	require.Len(t, providers, 2)
	org := providers[0]
	assert.Equal(t, "ACME HOME CARE LLC", org.Name)
	assert.Equal(t, model.EntityOrganization, org.EntityType)
	assert.Equal(t, "JOHN O'BRIEN", org.AuthorizedOfficial)
	assert.Equal(t, int64(4), org.AffiliatedProviders)
	assert.Equal(t, "12207", org.PostalCode)
	assert.Equal(t, "251E00000X", org.TaxonomyCode)
	assert.Equal(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), org.EnumerationDate)
	assert.Equal(t, "JOHN SMITH", providers[1].Name)
	assert.Zero(t, providers[1].AffiliatedProviders)

	require.Len(t, exclusions, 2)
	assert.Empty(t, exclusions[0].NPI)
	assert.Equal(t, "JOHN SMITH", exclusions[0].Name)
	assert.Equal(t, "NY", exclusions[0].State)
	assert.False(t, exclusions[0].Reinstated())
	assert.Equal(t, "ACME HOME CARE LLC", exclusions[1].Name)
	assert.Equal(t, "1234567890", exclusions[1].NPI)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), exclusions[1].ReinstatementDate)
}

type rawSpend struct {
	BillingNPI   int64   `parquet:"BILLING_PROVIDER_NPI_NUM"`
	ServicingNPI string  `parquet:"SERVICING_PROVIDER_NPI_NUM,optional"`
	HCPCS        string  `parquet:"HCPCS_CODE"`
	Month        int32   `parquet:"CLAIM_FROM_MONTH,date"`
	Benes        int64   `parquet:"TOTAL_UNIQUE_BENEFICIARIES"`
	Claims       int64   `parquet:"TOTAL_CLAIMS"`
	Paid         float64 `parquet:"TOTAL_PAID"`
}

func TestRun_ParquetSpending(t *testing.T) {
	dir, src := fixtures(t)
	src.Spending = filepath.Join(dir, "medicaid-provider-spending.parquet")
	days := int32(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Unix() / 86400)
	require.NoError(t, parquet.WriteFile(src.Spending, []rawSpend{
		{BillingNPI: 1234567890, HCPCS: "G0156", Month: days, Benes: 3, Claims: 40, Paid: 99.5},
		{BillingNPI: 1234567891, ServicingNPI: "1234567890", HCPCS: "99213", Month: days, Benes: 1, Claims: 1, Paid: 10},
	}))

	out := filepath.Join(dir, "data")
	_, err := Run(context.Background(), Options{Sources: src, OutDir: out, TmpDir: dir, Log: zerolog.Nop()})
	require.NoError(t, err)

	billing, _, _ := readSnapshot(t, out)
	require.Len(t, billing, 2)
	assert.Equal(t, model.BillingRecord{NPI: "1234567890", ServicePeriod: month(t, "2024-05"), HCPCSCode: "G0156", ClaimCount: 40, PaidAmountUSD: 99.5, UniqueBeneficiaries: 3}, billing[0])
	assert.Equal(t, "1234567890", billing[1].ServicingNPI)
}

func TestRun_MissingColumnIsSchemaMismatch(t *testing.T) {
	dir, src := fixtures(t)
	require.NoError(t, os.WriteFile(src.Exclusions, []byte("LASTNAME,FIRSTNAME,NPI\nA,B,1234567890\n"), 0o644))
	out := filepath.Join(dir, "data")

	_, err := Run(context.Background(), Options{Sources: src, OutDir: out, TmpDir: dir, Log: zerolog.Nop()})
	require.ErrorIs(t, err, dataset.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "EXCLDATE")
	assert.True(t, IsInputError(err))
	_, statErr := os.Stat(filepath.Join(out, dataset.Exclusions.FileName()))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_MissingSource(t *testing.T) {
	dir, src := fixtures(t)
	src.Registry = filepath.Join(dir, "nope.csv")
	_, err := Run(context.Background(), Options{Sources: src, OutDir: filepath.Join(dir, "data"), TmpDir: dir, Log: zerolog.Nop()})
	assert.ErrorIs(t, err, dataset.ErrMissingInput)

	src.Registry = ""
	_, err = Run(context.Background(), Options{Sources: src, OutDir: filepath.Join(dir, "data"), TmpDir: dir, Log: zerolog.Nop()})
	assert.ErrorIs(t, err, dataset.ErrMissingInput)
}

func TestRun_CorruptGzip(t *testing.T) {
	dir, src := fixtures(t)
	require.NoError(t, os.WriteFile(src.Spending, []byte("not gzip at all"), 0o644))
	_, err := Run(context.Background(), Options{Sources: src, OutDir: filepath.Join(dir, "data"), TmpDir: dir, Log: zerolog.Nop()})
	assert.ErrorIs(t, err, dataset.ErrCorruptInput)
}

type fakeStore struct {
	objects map[string]string
}

func (s fakeStore) Download(_ context.Context, key string, w io.Writer) (int64, error) {
	body, ok := s.objects[key]
	if !ok {
		return 0, fmt.Errorf("no such key %s", key)
	}
	n, err := io.WriteString(w, body)
	return int64(n), err
}

func TestRun_RemoteSources(t *testing.T) {
	defer func(d time.Duration) { retryBase = d }(retryBase)
	retryBase = time.Millisecond

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, leieCSV)
	}))
	defer srv.Close()

	dir, src := fixtures(t)
	src.Exclusions = srv.URL + "/exclusions/downloadables/UPDATED.csv?v=2"
	src.Affiliations = "s3://open-data/affiliations.csv"
	var bucketSeen string
	stores := func(_ context.Context, bucket string) (ObjectStore, error) {
		bucketSeen = bucket
		return fakeStore{objects: map[string]string{"affiliations.csv": affiliationsCSV}}, nil
	}

	out := filepath.Join(dir, "data")
	_, err := Run(context.Background(), Options{Sources: src, OutDir: out, TmpDir: dir, Stores: stores, Log: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "open-data", bucketSeen)

	_, providers, exclusions := readSnapshot(t, out)
	assert.Len(t, exclusions, 2)
	assert.Equal(t, int64(4), providers[0].AffiliatedProviders)

	leftovers, err := filepath.Glob(filepath.Join(dir, "raw-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "downloaded files should be removed")
}

func TestDownloadHTTP_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := DownloadHTTP(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloadHTTP_Cancelled(t *testing.T) {
	defer func(d time.Duration) { retryBase = d }(retryBase)
	retryBase = time.Hour

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := DownloadHTTP(ctx, srv.URL)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "UPDATED.csv", FileNameFromURL("https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv?x=1"))
	assert.Equal(t, "nppes.zip", FileNameFromURL("https://download.cms.gov/nppes/nppes.zip"))
}

func TestParseCount(t *testing.T) {
	for in, want := range map[string]int64{"": 0, "12": 12, "12.0": 12, "1e3": 1000} {
		got, err := parseCount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseCount("-1")
	assert.ErrorIs(t, err, errNegative)
	_, err = parseCount("twelve")
	assert.ErrorIs(t, err, errBadNumber)
	for _, huge := range []string{"1e19", "9223372036854775808", "9.3e18"} {
		_, err = parseCount(huge)
		assert.ErrorIs(t, err, errBadNumber, huge)
	}
	n, err := parseCount("9223372036854775807")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)

	v, err := parseAmount("$1,234.50")
	require.NoError(t, err)
	assert.Equal(t, 1234.5, v)
}
