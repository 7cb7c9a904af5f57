// Package model hands the exported snapshot to a model selection capability
// and persists what it returns.
//
// The Selector interface is the seam: rawgate owns loading the snapshot,
// splitting off the label column, storing models per cluster and writing
// predictions. How models are chosen, clustered or fitted is up to the
// Selector implementation.
package model

import (
	"fmt"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/parser"
)

// DefaultLabel is the label column of the training snapshot.
const DefaultLabel = "default payment next month"

// Dataset is a loaded snapshot. Missing values are empty strings.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// LoadDataset reads an exported snapshot.
func LoadDataset(path string) (*Dataset, error) {
	t, err := parser.ReadFile(path)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeModel, "load dataset").WithContext("path", path)
	}
	return &Dataset{Columns: t.Header, Rows: t.Rows}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Index returns the position of column name, or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// SplitLabel separates the label column from the features.
func (d *Dataset) SplitLabel(label string) (*Dataset, []string, error) {
	idx := d.Index(label)
	if idx < 0 {
		return nil, nil, gerrors.Newf(gerrors.CodeModel, "label column %q not found", label)
	}

	features := &Dataset{
		Columns: dropIndex(d.Columns, idx),
		Rows:    make([][]string, len(d.Rows)),
	}
	labels := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return nil, nil, fmt.Errorf("row %d has %d fields, want %d", i+1, len(row), len(d.Columns))
		}
		labels[i] = row[idx]
		features.Rows[i] = dropIndex(row, idx)
	}
	return features, labels, nil
}

func dropIndex(s []string, i int) []string {
	out := make([]string, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}
