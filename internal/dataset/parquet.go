package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/fraud-signals/internal/model"
)

// ParquetSnapshot reads the three tables from a snapshot directory. Each scan
// opens its own file handle, so detectors can scan concurrently.
type ParquetSnapshot struct {
	dir     string
	rows    map[Table]int64
	columns map[Column]bool
}

var schemas = map[Table]*parquet.Schema{
	Billing:    parquet.SchemaOf(billingRow{}),
	Providers:  parquet.SchemaOf(providerRow{}),
	Exclusions: parquet.SchemaOf(exclusionRow{}),
}

// Open inspects the snapshot in dir. It fails with ErrMissingInput when a
// table file is absent, ErrCorruptInput when one cannot be read as parquet and
// ErrSchemaMismatch when a required column is missing or has the wrong type.
func Open(dir string) (*ParquetSnapshot, error) {
	s := &ParquetSnapshot{
		dir:     dir,
		rows:    make(map[Table]int64),
		columns: make(map[Column]bool),
	}
	for _, t := range []Table{Billing, Providers, Exclusions} {
		if err := s.inspect(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the snapshot directory.
func (s *ParquetSnapshot) Dir() string { return s.dir }

func (s *ParquetSnapshot) path(t Table) string {
	return filepath.Join(s.dir, t.FileName())
}

func (s *ParquetSnapshot) inspect(t Table) error {
	path := s.path(t)
	f, pf, err := openParquet(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s.rows[t] = pf.NumRows()
	want := schemas[t]
	var problems []string
	for _, col := range pf.Schema().Columns() {
		name := strings.Join(col, ".")
		s.columns[Column{t, name}] = true

		expected, ok := want.Lookup(col...)
		if !ok {
			continue
		}
		got, _ := pf.Schema().Lookup(col...)
		if !compatible(expected.Node.Type().Kind(), got.Node.Type().Kind()) {
			problems = append(problems, fmt.Sprintf("%s is %s, want %s", name, got.Node.Type().Kind(), expected.Node.Type().Kind()))
		}
	}
	for _, c := range required[t] {
		if !s.columns[c] {
			problems = append(problems, "missing "+c.Name)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrSchemaMismatch, path, strings.Join(problems, "; "))
	}
	return nil
}

func compatible(want, got parquet.Kind) bool {
	if want == got {
		return true
	}
	return numeric(want) && numeric(got)
}

func numeric(k parquet.Kind) bool {
	switch k {
	case parquet.Int32, parquet.Int64, parquet.Float, parquet.Double:
		return true
	}
	return false
}

func openParquet(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrCorruptInput, path, err)
	}
	return f, pf, nil
}

func (s *ParquetSnapshot) NumRows(t Table) int64 {
	if n, ok := s.rows[t]; ok {
		return n
	}
	return -1
}

func (s *ParquetSnapshot) HasColumn(c Column) bool { return s.columns[c] }

func (s *ParquetSnapshot) ScanBilling(ctx context.Context, fn func([]model.BillingRecord) error) error {
	return scan(ctx, s.path(Billing), billingRow.record, fn)
}

func (s *ParquetSnapshot) ScanProviders(ctx context.Context, fn func([]model.Provider) error) error {
	return scan(ctx, s.path(Providers), providerRow.record, fn)
}

func (s *ParquetSnapshot) ScanExclusions(ctx context.Context, fn func([]model.ExclusionRecord) error) error {
	return scan(ctx, s.path(Exclusions), exclusionRow.record, fn)
}

// scan streams one table row group by row group, converting each batch of
// parquet rows before handing it to fn.
func scan[R, M any](ctx context.Context, path string, conv func(R) (M, error), fn func([]M) error) error {
	f, pf, err := openParquet(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := make([]R, BatchSize)
	out := make([]M, 0, BatchSize)
	for _, rg := range pf.RowGroups() {
		if err := scanRowGroup(ctx, path, rg, rows, out, conv, fn); err != nil {
			return err
		}
	}
	return nil
}

func scanRowGroup[R, M any](ctx context.Context, path string, rg parquet.RowGroup, rows []R, out []M, conv func(R) (M, error), fn func([]M) error) error {
	r := parquet.NewGenericRowGroupReader[R](rg)
	defer r.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		clear(rows)
		n, readErr := r.Read(rows)
		out = out[:0]
		for i := 0; i < n; i++ {
			m, err := conv(rows[i])
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		if len(out) > 0 {
			if err := fn(out); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%w: reading %s: %v", ErrCorruptInput, path, readErr)
		}
	}
}
