// Package parser reads and rewrites the CSV batch files the pipeline stages.
//
// A file is read whole into a Table: the first record is the header and
// defines the column count, every later record must have the same width.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEmpty is returned for a file without a header record.
var ErrEmpty = errors.New("csv has no header")

// Table is a parsed CSV file.
type Table struct {
	Header []string
	Rows   [][]string
}

// NumColumns returns the width of the table.
func (t *Table) NumColumns() int {
	return len(t.Header)
}

// Column returns the values of column i.
func (t *Table) Column(i int) []string {
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Read parses CSV from r. A ragged record or malformed quoting yields an
// error with code CodeParseFailed.
func Read(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeParseFailed, "read csv")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = 0
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, gerrors.Wrap(ErrEmpty, gerrors.CodeParseFailed, "parse csv")
	}
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeParseFailed, "parse csv header")
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, gerrors.Wrap(err, gerrors.CodeParseFailed, "parse csv")
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ReadFile parses the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		if ge, ok := err.(*gerrors.GateError); ok {
			ge.WithContext("file", filepath.Base(path))
		}
		return nil, err
	}
	return t, nil
}

// Write renders t as CSV with minimal quoting and LF line endings.
func Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile replaces the file at path with t. The content is written to a
// sibling temp file first and renamed over the original.
func WriteFile(path string, t *Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, t); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
