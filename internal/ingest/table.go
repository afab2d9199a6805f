package ingest

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/fraud-signals/internal/dataset"
)

// row is one raw input row addressed by upstream column name.
type row interface {
	get(col string) string
}

// table is a raw input file. Column names compare case-insensitively.
type table interface {
	has(col string) bool
	each(ctx context.Context, fn func(r row) error) error
	Close() error
}

func colKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
}

// openTable picks a reader by file extension: .parquet, .csv, .csv.gz or a
// .zip holding CSVs (the largest one not named like a header file is used).
func openTable(p string) (table, error) {
	lower := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return openParquetTable(p)
	case strings.HasSuffix(lower, ".zip"):
		return openZipTable(p)
	case strings.HasSuffix(lower, ".gz"):
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		gz, err := NewGzipReader(bufio.NewReaderSize(f, 1<<20))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %v", dataset.ErrCorruptInput, p, err)
		}
		return newCSVTable(p, gz, f)
	default:
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		return newCSVTable(p, f)
	}
}

type csvTable struct {
	name    string
	r       *csv.Reader
	cols    map[string]int
	closers []io.Closer
}

type csvRow struct {
	cols   map[string]int
	fields []string
}

func (r csvRow) get(col string) string {
	i, ok := r.cols[colKey(col)]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func newCSVTable(name string, rc io.Reader, closers ...io.Closer) (*csvTable, error) {
	if c, ok := rc.(io.Closer); ok {
		closers = append([]io.Closer{c}, closers...)
	}
	r := csv.NewReader(bufio.NewReaderSize(rc, 1<<20))
	r.ReuseRecord = true
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: empty file", dataset.ErrCorruptInput, name)
		}
		return nil, fmt.Errorf("%w: %s: reading header: %v", dataset.ErrCorruptInput, name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := cols[colKey(h)]; !dup {
			cols[colKey(h)] = i
		}
	}
	return &csvTable{name: name, r: r, cols: cols, closers: closers}, nil
}

func (t *csvTable) has(col string) bool {
	_, ok := t.cols[colKey(col)]
	return ok
}

func (t *csvTable) each(ctx context.Context, fn func(r row) error) error {
	for n := 0; ; n++ {
		if n%dataset.BatchSize == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		fields, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return fmt.Errorf("%w: %s: %v", dataset.ErrCorruptInput, t.name, err)
			}
			return fmt.Errorf("reading %s: %w", t.name, err)
		}
		if err := fn(csvRow{cols: t.cols, fields: fields}); err != nil {
			return err
		}
	}
}

func (t *csvTable) Close() error {
	var err error
	for _, c := range t.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func openZipTable(p string) (table, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", dataset.ErrCorruptInput, p, err)
	}
	var best *zip.File
	for _, f := range zr.File {
		base := path.Base(f.Name)
		if !strings.HasSuffix(strings.ToLower(base), ".csv") || strings.Contains(base, "FileHeader") {
			continue
		}
		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
			best = f
		}
	}
	if best == nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %s: no CSV in archive", dataset.ErrMissingInput, p)
	}
	rc, err := best.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %s: %v", dataset.ErrCorruptInput, p, err)
	}
	return newCSVTable(p+"!"+best.Name, rc, zr)
}

// parquetTable reads a flat parquet file row group by row group.
type parquetTable struct {
	name  string
	f     *os.File
	pf    *parquet.File
	cols  map[string]int // column key -> leaf index
	dates map[int]bool   // leaf indexes with the DATE logical type
}

type parquetRow struct {
	t      *parquetTable
	values []string
}

func (r parquetRow) get(col string) string {
	i, ok := r.t.cols[colKey(col)]
	if !ok {
		return ""
	}
	return r.values[i]
}

func openParquetTable(p string) (*parquetTable, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", dataset.ErrCorruptInput, p, err)
	}
	t := &parquetTable{name: p, f: f, pf: pf, cols: make(map[string]int), dates: make(map[int]bool)}
	for _, col := range pf.Schema().Columns() {
		if len(col) != 1 {
			continue
		}
		leaf, ok := pf.Schema().Lookup(col...)
		if !ok {
			continue
		}
		t.cols[colKey(col[0])] = leaf.ColumnIndex
		if lt := leaf.Node.Type().LogicalType(); lt != nil && lt.Date != nil {
			t.dates[leaf.ColumnIndex] = true
		}
	}
	return t, nil
}

func (t *parquetTable) has(col string) bool {
	_, ok := t.cols[colKey(col)]
	return ok
}

func (t *parquetTable) each(ctx context.Context, fn func(r row) error) error {
	width := len(t.pf.Schema().Columns())
	buf := make([]parquet.Row, dataset.BatchSize)
	for _, rg := range t.pf.RowGroups() {
		if err := t.eachInGroup(ctx, rg, buf, width, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *parquetTable) eachInGroup(ctx context.Context, rg parquet.RowGroup, buf []parquet.Row, width int, fn func(r row) error) error {
	rows := rg.Rows()
	defer rows.Close()
	values := make([]string, width)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rows.ReadRows(buf)
		for _, raw := range buf[:n] {
			clear(values)
			for _, v := range raw {
				if c := v.Column(); c >= 0 && c < width {
					values[c] = t.format(c, v)
				}
			}
			if ferr := fn(parquetRow{t: t, values: values}); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", dataset.ErrCorruptInput, t.name, err)
		}
	}
}

func (t *parquetTable) format(col int, v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return strings.TrimSpace(string(v.ByteArray()))
	case parquet.Int32:
		if t.dates[col] {
			return time.Unix(int64(v.Int32())*86400, 0).UTC().Format("2006-01-02")
		}
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	}
	return v.String()
}

func (t *parquetTable) Close() error {
	return t.f.Close()
}
