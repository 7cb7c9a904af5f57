package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/parser"
	"github.com/logflow/rawgate/pkg/schema"
)

// Relocator moves a staged file out of Good staging.
type Relocator interface {
	MoveToBad(name string) error
}

// FileResult is the outcome of loading one file.
type FileResult struct {
	File string
	Rows int
	Err  error
}

// Loaded reports whether the file's rows were committed.
func (r FileResult) Loaded() bool { return r.Err == nil }

// LoadGoodFiles inserts every file in goodDir into the table, one
// transaction per file. The header is skipped and each row is bound
// through a prepared INSERT naming the declared columns. A row fault or
// store error rolls the file back, relocates it and moves on to the next
// file. Cancellation is checked between files; a file in flight is rolled
// back and left in place.
func (l *Loader) LoadGoodFiles(ctx context.Context, goodDir string, reloc Relocator) ([]FileResult, error) {
	if l.spec == nil {
		return nil, gerrors.New(gerrors.CodeStoreSchema, "table not ensured")
	}

	names, err := regularFiles(goodDir)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeStaging, "list good staging")
	}

	var results []FileResult
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, gerrors.ContextCanceled("load good files")
		}

		rows, err := l.loadFile(ctx, filepath.Join(goodDir, name))
		if err != nil && ctx.Err() != nil {
			return results, gerrors.ContextCanceled("load good files")
		}

		res := FileResult{File: name, Rows: rows, Err: err}
		if err != nil {
			res.Rows = 0
			l.record(l.streams.Insert, fmt.Sprintf("Error while inserting data into table: %s: %v", name, err))
			if mvErr := reloc.MoveToBad(name); mvErr != nil {
				return append(results, res), mvErr
			}
			l.record(l.streams.Insert, "File Moved Successfully "+name)
		} else {
			l.record(l.streams.Insert, fmt.Sprintf(" %s: File loaded successfully!! (%d rows)", name, rows))
		}
		results = append(results, res)

		if l.progress != nil {
			l.progress(name, res.Rows)
		}
	}

	l.state = StatePopulated
	return results, nil
}

func (l *Loader) loadFile(ctx context.Context, path string) (n int, err error) {
	name := filepath.Base(path)

	t, err := parser.ReadFile(path)
	if err != nil {
		return 0, gerrors.RowInsert(name, 0, err)
	}
	if t.NumColumns() != len(l.spec.Columns) {
		return 0, gerrors.RowInsert(name, 0,
			fmt.Errorf("file has %d fields, table has %d columns", t.NumColumns(), len(l.spec.Columns)))
	}

	affinities := make([]schema.Affinity, len(l.spec.Columns))
	for i, c := range l.spec.Columns {
		affinities[i] = c.Affinity()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, gerrors.Wrap(err, gerrors.CodeRowInsert, "begin transaction").WithContext("file", name)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, l.insertSQL())
	if err != nil {
		return 0, gerrors.Wrap(err, gerrors.CodeRowInsert, "prepare insert").WithContext("file", name)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		// Data rows are numbered from 1; the header is row 0.
		args, cerr := convertRow(row, affinities)
		if cerr != nil {
			return 0, gerrors.RowInsert(name, i+1, cerr)
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return 0, gerrors.RowInsert(name, i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, gerrors.Wrap(err, gerrors.CodeRowInsert, "commit").WithContext("file", name)
	}
	return len(t.Rows), nil
}

func (l *Loader) insertSQL() string {
	cols := make([]string, len(l.spec.Columns))
	marks := make([]string, len(l.spec.Columns))
	for i, c := range l.spec.Columns {
		cols[i] = QuoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(l.cfg.Table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

func convertRow(row []string, affinities []schema.Affinity) ([]any, error) {
	if len(row) != len(affinities) {
		return nil, fmt.Errorf("row has %d fields, want %d", len(row), len(affinities))
	}
	args := make([]any, len(row))
	for i, v := range row {
		a, err := ConvertValue(v, affinities[i])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		args[i] = a
	}
	return args, nil
}

// ConvertValue binds a CSV cell by column affinity. Null markers become
// nil. Integer columns accept integral decimals such as "2.0".
func ConvertValue(v string, a schema.Affinity) (any, error) {
	if parser.IsNull(v) {
		return nil, nil
	}
	s := strings.TrimSpace(v)

	switch a {
	case schema.AffinityInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%q overflows a 64-bit integer", v)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("%q is not an integer", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("%q overflows a 64-bit integer", v)
		}
		return int64(f), nil
	case schema.AffinityReal:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return v, nil
	}
}

func regularFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
