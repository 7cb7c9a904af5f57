package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/writer"
)

// ExportCSV writes every table row to path in the export format: a header
// of column names in select order, every field quoted, CRLF line endings.
// The parent directory is created and a previous export is replaced.
// It returns the number of data rows written.
func (l *Loader) ExportCSV(ctx context.Context, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, l.exportErr(err, "create export directory", path)
	}

	rows, err := l.selectAll(ctx)
	if err != nil {
		return 0, l.exportErr(err, "select rows", path)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return 0, l.exportErr(err, "read columns", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, l.exportErr(err, "create export file", path)
	}
	defer f.Close()

	w, err := writer.NewCSVWriter(f, header)
	if err != nil {
		return 0, l.exportErr(err, "write header", path)
	}
	if err := copyRows(rows, len(header), w); err != nil {
		return 0, l.exportErr(err, "write rows", path)
	}
	if err := f.Close(); err != nil {
		return 0, l.exportErr(err, "close export file", path)
	}

	l.state = StateExported
	l.record(l.streams.Export, "File exported successfully!!!")
	return w.Rows(), nil
}

// ExportParquet writes every table row to path as Parquet. Dialects that
// copy Parquet natively do so; otherwise rows stream through an Arrow
// writer typed by column affinity.
func (l *Loader) ExportParquet(ctx context.Context, path string, cfg writer.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return l.exportErr(err, "create export directory", path)
	}

	if pc, ok := l.dialect.(ParquetCopier); ok {
		stmt := pc.CopyParquetSQL("SELECT * FROM "+QuoteIdent(l.cfg.Table), path, cfg.Compression)
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return l.exportErr(err, "copy parquet", path)
		}
		l.record(l.streams.Export, "Parquet snapshot exported successfully!!!")
		return nil
	}

	tableCols, err := l.Columns(ctx)
	if err != nil {
		return l.exportErr(err, "inspect table", path)
	}

	rows, err := l.selectAll(ctx)
	if err != nil {
		return l.exportErr(err, "select rows", path)
	}
	defer rows.Close()

	f, err := os.Create(path)
	if err != nil {
		return l.exportErr(err, "create export file", path)
	}
	defer f.Close()

	pw, err := writer.NewParquetWriter(f, writer.ColumnsOf(tableCols), cfg)
	if err != nil {
		return l.exportErr(err, "open parquet writer", path)
	}
	if err := copyRows(rows, len(tableCols), pw); err != nil {
		pw.Close()
		return l.exportErr(err, "write rows", path)
	}
	if err := pw.Close(); err != nil {
		return l.exportErr(err, "close parquet writer", path)
	}

	l.record(l.streams.Export, "Parquet snapshot exported successfully!!!")
	return nil
}

// Count returns the number of rows in the table.
func (l *Loader) Count(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(l.cfg.Table)).Scan(&n)
	return n, err
}

func (l *Loader) selectAll(ctx context.Context) (*sql.Rows, error) {
	return l.db.QueryContext(ctx, "SELECT * FROM "+QuoteIdent(l.cfg.Table))
}

func copyRows(rows *sql.Rows, n int, w writer.RowWriter) error {
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := w.WriteRow(vals); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return w.Close()
}

func (l *Loader) exportErr(err error, op, path string) error {
	l.record(l.streams.Export, fmt.Sprintf("File exporting failed. Error : %v", err))
	return gerrors.Wrap(err, gerrors.CodeStoreExport, op).WithContext("path", path)
}
