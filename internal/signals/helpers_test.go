package signals

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

var analysisDate = time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)

func month(s string) model.Month {
	m, err := model.ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

func date(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func bill(npi, period, code string, claims int64, paid float64, benes int64) model.BillingRecord {
	return model.BillingRecord{
		NPI:                 npi,
		ServicePeriod:       month(period),
		HCPCSCode:           code,
		ClaimCount:          claims,
		PaidAmountUSD:       paid,
		UniqueBeneficiaries: benes,
	}
}

func org(npi, name, state string) model.Provider {
	return model.Provider{NPI: npi, Name: name, EntityType: model.EntityOrganization, State: state}
}

func person(npi, name, state string) model.Provider {
	return model.Provider{NPI: npi, Name: name, EntityType: model.EntityIndividual, State: state}
}

func env(mem *dataset.Memory, mutate ...func(*config.Config)) Env {
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	// Small batches exercise the batch boundaries.
	if mem.Batch == 0 {
		mem.Batch = 3
	}
	return Env{
		Snapshot:     mem,
		Config:       cfg,
		AnalysisDate: analysisDate,
		Log:          zerolog.Nop(),
	}
}

// withLog routes the env's log into a buffer.
func withLog(e Env) (Env, *bytes.Buffer) {
	var buf bytes.Buffer
	e.Log = zerolog.New(&buf)
	return e, &buf
}

func detect(t *testing.T, d Detector, e Env) []Flag {
	t.Helper()
	flags, err := d.Detect(context.Background(), e)
	require.NoError(t, err)
	for _, f := range flags {
		require.Equal(t, d.Kind(), f.Kind)
		require.Equal(t, d.Kind(), f.Detail.Kind())
		require.GreaterOrEqual(t, f.EstimatedOverpaymentUSD, 0.0)
	}
	return flags
}

func byNPI(flags []Flag) map[string]Flag {
	out := make(map[string]Flag, len(flags))
	for _, f := range flags {
		out[f.NPI] = f
	}
	return out
}
