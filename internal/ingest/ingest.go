// Package ingest converts raw public datasets into the canonical parquet
// snapshot the detectors read.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/model"
	"github.com/gyeh/fraud-signals/internal/progress"
)

// Sources locates the raw inputs. Each may be a local path, an http(s) URL
// or an s3:// URI. Affiliations is optional.
type Sources struct {
	Spending     string
	Exclusions   string
	Registry     string
	Affiliations string
}

// Options configures an ingest run.
type Options struct {
	Sources
	OutDir   string
	TmpDir   string
	Stores   OpenStore
	Log      zerolog.Logger
	Progress progress.Manager
}

// Stats describes one converted table.
type Stats struct {
	Table   dataset.Table
	Rows    int64
	Dropped map[string]int
}

// Run converts all sources into OutDir. Tables are converted concurrently;
// the first failure cancels the rest and removes their partial output.
func Run(ctx context.Context, opts Options) ([]Stats, error) {
	for name, src := range map[string]string{"spending": opts.Spending, "exclusions": opts.Exclusions, "registry": opts.Registry} {
		if src == "" {
			return nil, fmt.Errorf("%w: no %s source given", dataset.ErrMissingInput, name)
		}
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	mgr := opts.Progress
	if mgr == nil {
		mgr = progress.NoopManager{}
	}
	fetcher := &Fetcher{TmpDir: opts.TmpDir, Stores: opts.Stores}

	stats := make([]Stats, 3)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tr := mgr.NewTracker(0, 3, "billing")
		defer tr.Done()
		var err error
		stats[0], err = ingestTable(gctx, fetcher, opts.Spending, spendingColumns, dataset.CreateBilling, opts.OutDir, billingFrom, tr)
		return err
	})
	g.Go(func() error {
		tr := mgr.NewTracker(1, 3, "exclusions")
		defer tr.Done()
		var err error
		stats[1], err = ingestTable(gctx, fetcher, opts.Exclusions, exclusionColumns, dataset.CreateExclusions, opts.OutDir, exclusionFrom, tr)
		return err
	})
	g.Go(func() error {
		tr := mgr.NewTracker(2, 3, "providers")
		defer tr.Done()
		headcounts, err := loadAffiliations(gctx, fetcher, opts.Affiliations, opts.Log, tr)
		if err != nil {
			return err
		}
		conv := func(r row) (model.Provider, error) { return providerFrom(r, headcounts) }
		stats[2], err = ingestTable(gctx, fetcher, opts.Registry, registryColumns, dataset.CreateProviders, opts.OutDir, conv, tr)
		return err
	})
	err := g.Wait()
	mgr.Wait()
	if err != nil {
		return nil, err
	}

	for _, s := range stats {
		ev := opts.Log.Info()
		if len(s.Dropped) > 0 {
			ev = opts.Log.Warn()
			for reason, n := range s.Dropped {
				ev = ev.Int(strings.ReplaceAll(reason, " ", "_"), n)
			}
		}
		ev.Str("table", string(s.Table)).Int64("rows", s.Rows).Msg("table ingested")
	}
	return stats, nil
}

func ingestTable[M any](
	ctx context.Context,
	fetcher *Fetcher,
	src string,
	required []string,
	create func(dir string) (*dataset.Writer[M], error),
	outDir string,
	conv func(row) (M, error),
	tr progress.Tracker,
) (Stats, error) {
	local, cleanup, err := fetcher.Fetch(ctx, src, tr)
	if err != nil {
		return Stats{}, err
	}
	defer cleanup()

	t, err := openTable(local)
	if err != nil {
		return Stats{}, err
	}
	defer t.Close()
	if err := requireColumns(t, src, required); err != nil {
		return Stats{}, err
	}

	w, err := create(outDir)
	if err != nil {
		return Stats{}, err
	}
	st, err := convert(ctx, t, w, conv, tr)
	if err != nil {
		w.Abort()
		return Stats{}, fmt.Errorf("ingesting %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func requireColumns(t table, src string, required []string) error {
	var missing []string
	for _, c := range required {
		if !t.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing %s", dataset.ErrSchemaMismatch, src, strings.Join(missing, ", "))
	}
	return nil
}

func convert[M any](ctx context.Context, t table, w *dataset.Writer[M], conv func(row) (M, error), tr progress.Tracker) (Stats, error) {
	st := Stats{Dropped: make(map[string]int)}
	tr.SetStage("converting")
	batch := make([]M, 0, dataset.BatchSize)
	var seen int64
	err := t.each(ctx, func(r row) error {
		seen++
		rec, err := conv(r)
		if err != nil {
			st.Dropped[err.Error()]++
			return nil
		}
		batch = append(batch, rec)
		if len(batch) == cap(batch) {
			if err := w.Write(batch...); err != nil {
				return err
			}
			batch = batch[:0]
			tr.SetCounter("rows", seen)
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	if err := w.Write(batch...); err != nil {
		return st, err
	}
	st.Rows = w.Rows()
	tr.SetCounter("rows", st.Rows)
	return st, nil
}

// loadAffiliations reads organization headcounts. An empty src yields an
// empty map; later rows for the same NPI win.
func loadAffiliations(ctx context.Context, fetcher *Fetcher, src string, log zerolog.Logger, tr progress.Tracker) (map[string]int64, error) {
	headcounts := make(map[string]int64)
	if src == "" {
		return headcounts, nil
	}
	local, cleanup, err := fetcher.Fetch(ctx, src, tr)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	t, err := openTable(local)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	if err := requireColumns(t, src, affiliationsColumns); err != nil {
		return nil, err
	}

	tr.SetStage("reading affiliations")
	var dropped int
	err = t.each(ctx, func(r row) error {
		npi, n, err := affiliationFrom(r)
		if err != nil {
			dropped++
			return nil
		}
		headcounts[npi] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading affiliations %s: %w", src, err)
	}
	if dropped > 0 {
		log.Warn().Int("rows", dropped).Msg("dropped malformed affiliation rows")
	}
	return headcounts, nil
}

// IsInputError reports whether err is one of the fatal load-time errors.
func IsInputError(err error) bool {
	return errors.Is(err, dataset.ErrMissingInput) ||
		errors.Is(err, dataset.ErrCorruptInput) ||
		errors.Is(err, dataset.ErrSchemaMismatch)
}
