package dataset

import (
	"context"

	"github.com/gyeh/fraud-signals/internal/model"
)

// Memory is an in-memory Snapshot, used for tests and small inputs.
type Memory struct {
	Billing    []model.BillingRecord
	Providers  []model.Provider
	Exclusions []model.ExclusionRecord

	// Missing lists columns the snapshot should report as absent.
	Missing []Column

	// Batch overrides BatchSize when positive.
	Batch int
}

func (m *Memory) batch() int {
	if m.Batch > 0 {
		return m.Batch
	}
	return BatchSize
}

func (m *Memory) ScanBilling(ctx context.Context, fn func([]model.BillingRecord) error) error {
	return scanSlice(ctx, m.Billing, m.batch(), fn)
}

func (m *Memory) ScanProviders(ctx context.Context, fn func([]model.Provider) error) error {
	return scanSlice(ctx, m.Providers, m.batch(), fn)
}

func (m *Memory) ScanExclusions(ctx context.Context, fn func([]model.ExclusionRecord) error) error {
	return scanSlice(ctx, m.Exclusions, m.batch(), fn)
}

func (m *Memory) NumRows(t Table) int64 {
	switch t {
	case Billing:
		return int64(len(m.Billing))
	case Providers:
		return int64(len(m.Providers))
	case Exclusions:
		return int64(len(m.Exclusions))
	}
	return -1
}

func (m *Memory) HasColumn(c Column) bool {
	for _, missing := range m.Missing {
		if missing == c {
			return false
		}
	}
	return true
}

func scanSlice[M any](ctx context.Context, rows []M, size int, fn func([]M) error) error {
	for start := 0; start < len(rows); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(rows))
		// Hand out a copy so callbacks cannot mutate the backing data.
		batch := append([]M(nil), rows[start:end]...)
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}
