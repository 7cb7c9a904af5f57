// Package batch cuts a workbook into CSV batch files named the way the
// pipeline expects, so a source spreadsheet can be fed through validation.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/naming"
	"github.com/logflow/rawgate/pkg/parser"
)

// Options control how a workbook is split.
type Options struct {
	Prefix string
	// Size is the number of data rows per batch.
	Size int
	// DateSeed and TimeSeed stamp the first batch; each later batch
	// increments both by one.
	DateSeed int
	TimeSeed int
	// Sheet defaults to the first sheet.
	Sheet string
	// SkipRows drops leading rows before the header.
	SkipRows int
}

// DefaultOptions returns the stamps and size the batch names are built from.
func DefaultOptions() Options {
	return Options{
		Prefix:   naming.DefaultPrefix,
		Size:     1000,
		DateSeed: 23111960,
		TimeSeed: 124500,
	}
}

// BatchName returns the file name of the n-th batch, counting from zero.
func (o Options) BatchName(n int) string {
	return fmt.Sprintf("%s_%s_%s.csv", o.Prefix, strconv.Itoa(o.DateSeed+n), strconv.Itoa(o.TimeSeed+n))
}

// Split reads the workbook at src and writes batches into destDir. It
// returns the written file names in order. A trailing partial batch is
// written; an empty one is not.
func Split(ctx context.Context, src, destDir string, opts Options) ([]string, error) {
	if opts.Size <= 0 {
		return nil, gerrors.New(gerrors.CodeConfig, "batch size must be positive")
	}
	if opts.Prefix == "" {
		opts.Prefix = naming.DefaultPrefix
	}

	f, err := excelize.OpenFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.FileNotFound(src)
		}
		return nil, gerrors.Wrap(err, gerrors.CodeParseFailed, "open workbook").WithContext("path", src)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, gerrors.New(gerrors.CodeParseFailed, "workbook has no sheets").WithContext("path", src)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeParseFailed, "read sheet").WithContext("sheet", sheet)
	}
	defer rows.Close()

	for i := 0; i < opts.SkipRows; i++ {
		if !rows.Next() {
			break
		}
	}
	if !rows.Next() {
		return nil, gerrors.New(gerrors.CodeParseFailed, "sheet has no header").WithContext("sheet", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeParseFailed, "read header").WithContext("sheet", sheet)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeStaging, "create batch directory")
	}

	var written []string
	cur := &parser.Table{Header: header}
	flush := func() error {
		if len(cur.Rows) == 0 {
			return nil
		}
		name := opts.BatchName(len(written))
		if err := parser.WriteFile(filepath.Join(destDir, name), cur); err != nil {
			return gerrors.Wrap(err, gerrors.CodeStaging, "write batch").WithContext("file", name)
		}
		written = append(written, name)
		cur = &parser.Table{Header: header}
		return nil
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return written, gerrors.ContextCanceled("split workbook")
		}
		cols, err := rows.Columns()
		if err != nil {
			return written, gerrors.Wrap(err, gerrors.CodeParseFailed, "read row").WithContext("sheet", sheet)
		}
		if len(cols) == 0 {
			continue
		}
		cur.Rows = append(cur.Rows, fit(cols, len(header)))
		if len(cur.Rows) == opts.Size {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := rows.Error(); err != nil {
		return written, gerrors.Wrap(err, gerrors.CodeParseFailed, "read sheet").WithContext("sheet", sheet)
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

// fit pads or truncates a row to width. Trailing empty cells are not
// reported by the workbook reader.
func fit(cols []string, width int) []string {
	if len(cols) == width {
		return cols
	}
	out := make([]string, width)
	copy(out, cols)
	return out
}
