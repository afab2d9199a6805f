package signals

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
)

// scanBilling visits every billing row, reporting progress against the table
// size.
func scanBilling(ctx context.Context, env Env, fn func(r *model.BillingRecord)) error {
	tr := env.tracker()
	tr.SetStage("scanning billing")
	total := env.Snapshot.NumRows(dataset.Billing)
	var seen int64
	return env.Snapshot.ScanBilling(ctx, func(batch []model.BillingRecord) error {
		for i := range batch {
			fn(&batch[i])
		}
		seen += int64(len(batch))
		tr.SetProgress(seen, total)
		return nil
	})
}

func scanProviders(ctx context.Context, env Env, fn func(p *model.Provider)) error {
	tr := env.tracker()
	tr.SetStage("scanning registry")
	total := env.Snapshot.NumRows(dataset.Providers)
	var seen int64
	return env.Snapshot.ScanProviders(ctx, func(batch []model.Provider) error {
		for i := range batch {
			fn(&batch[i])
		}
		seen += int64(len(batch))
		tr.SetProgress(seen, total)
		return nil
	})
}

func sortFlags(flags []Flag) {
	slices.SortFunc(flags, func(a, b Flag) int {
		if c := strings.Compare(a.NPI, b.NPI); c != 0 {
			return c
		}
		return strings.Compare(a.Detail.SortKey(), b.Detail.SortKey())
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// monthSet counts distinct months.
type monthSet map[model.Month]struct{}

func (s monthSet) add(m model.Month) { s[m] = struct{}{} }
