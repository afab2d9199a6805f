package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/fraud-signals/internal/model"
)

// Writer appends records of one table to a parquet file. Records are
// buffered and flushed in BatchSize chunks.
type Writer[M any] struct {
	path  string
	f     *os.File
	write func([]M) error
	close func() error
	rows  int64
}

func newWriter[R, M any](path string, conv func(M) R) (*Writer[M], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	pw := parquet.NewGenericWriter[R](f, parquet.Compression(&parquet.Zstd))
	buf := make([]R, 0, BatchSize)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if _, err := pw.Write(buf); err != nil {
			return err
		}
		buf = buf[:0]
		return nil
	}
	w := &Writer[M]{path: path, f: f}
	w.write = func(recs []M) error {
		for _, m := range recs {
			buf = append(buf, conv(m))
			if len(buf) == cap(buf) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	}
	w.close = func() error {
		if err := flush(); err != nil {
			return err
		}
		return pw.Close()
	}
	return w, nil
}

// CreateBilling creates billing.parquet in dir.
func CreateBilling(dir string) (*Writer[model.BillingRecord], error) {
	return newWriter(filepath.Join(dir, Billing.FileName()), toBillingRow)
}

// CreateProviders creates providers.parquet in dir.
func CreateProviders(dir string) (*Writer[model.Provider], error) {
	return newWriter(filepath.Join(dir, Providers.FileName()), toProviderRow)
}

// CreateExclusions creates exclusions.parquet in dir.
func CreateExclusions(dir string) (*Writer[model.ExclusionRecord], error) {
	return newWriter(filepath.Join(dir, Exclusions.FileName()), toExclusionRow)
}

// Write appends recs.
func (w *Writer[M]) Write(recs ...M) error {
	if err := w.write(recs); err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	w.rows += int64(len(recs))
	return nil
}

// Rows returns the number of records written so far.
func (w *Writer[M]) Rows() int64 { return w.rows }

// Close flushes buffered rows, writes the parquet footer and closes the file.
func (w *Writer[M]) Close() error {
	err := w.close()
	if closeErr := w.f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	return nil
}

// Abort closes the file and removes it.
func (w *Writer[M]) Abort() {
	w.f.Close()
	os.Remove(w.path)
}

// WriteSnapshot copies every table of src into dir as a parquet snapshot.
func WriteSnapshot(ctx context.Context, dir string, src Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	billing, err := CreateBilling(dir)
	if err != nil {
		return err
	}
	if err := copyTable(billing, func(fn func([]model.BillingRecord) error) error {
		return src.ScanBilling(ctx, fn)
	}); err != nil {
		return err
	}
	providers, err := CreateProviders(dir)
	if err != nil {
		return err
	}
	if err := copyTable(providers, func(fn func([]model.Provider) error) error {
		return src.ScanProviders(ctx, fn)
	}); err != nil {
		return err
	}
	exclusions, err := CreateExclusions(dir)
	if err != nil {
		return err
	}
	return copyTable(exclusions, func(fn func([]model.ExclusionRecord) error) error {
		return src.ScanExclusions(ctx, fn)
	})
}

func copyTable[M any](w *Writer[M], scan func(func([]M) error) error) error {
	if err := scan(func(batch []M) error { return w.Write(batch...) }); err != nil {
		w.Abort()
		return err
	}
	return w.Close()
}
