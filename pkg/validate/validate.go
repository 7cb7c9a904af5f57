// Package validate runs the content checks over Good staging: the column
// count pass and the wholly-null column pass. Files failing a pass are
// relocated to Bad staging and never reconsidered.
package validate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/logflow/rawgate/pkg/audit"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/parser"
	"github.com/logflow/rawgate/pkg/schema"
)

// Staging is the view of the staging area a pass needs.
type Staging interface {
	GoodDir() string
	GoodFiles() ([]string, error)
	MoveToBad(name string) error
}

// Rejection records a file a pass moved to Bad staging.
type Rejection struct {
	File string
	Err  error
}

// Result is the outcome of one pass.
type Result struct {
	Kept     []string
	Rejected []Rejection
}

// Validator holds the rules and the streams both passes record to.
type Validator struct {
	spec          *schema.Spec
	staging       Staging
	sink          audit.Sink
	columnStream  string
	missingStream string
}

// New creates a Validator. Column count decisions go to columnStream and
// null column decisions to missingStream.
func New(spec *schema.Spec, staging Staging, sink audit.Sink, columnStream, missingStream string) *Validator {
	if sink == nil {
		sink = audit.Discard
	}
	return &Validator{
		spec:          spec,
		staging:       staging,
		sink:          sink,
		columnStream:  columnStream,
		missingStream: missingStream,
	}
}

// ColumnCountPass rejects every Good file whose header width differs from
// the schema column count, or which does not parse as rectangular CSV.
// Survivors are rewritten normalized in place.
func (v *Validator) ColumnCountPass(ctx context.Context) (Result, error) {
	v.sink.Record(v.columnStream, "Column Length Validation Started!!")
	res, err := v.pass(ctx, v.columnStream, func(name string, t *parser.Table, perr error) error {
		if perr != nil {
			return gerrors.Wrap(perr, gerrors.CodeColumnCount, "unreadable csv").WithContext("file", name)
		}
		if t.NumColumns() != v.spec.ColumnCount {
			return gerrors.ColumnCount(name, t.NumColumns(), v.spec.ColumnCount)
		}
		return nil
	}, "Invalid Column Length for the file!! File moved to Bad Raw Folder :: %s")
	v.sink.Record(v.columnStream, "Column Length Validation Completed!!")
	return res, err
}

// NullColumnPass rejects every Good file with a column whose values are
// all null markers. Checking a file stops at its first such column. A file
// without data rows has only null columns and is rejected. Survivors are
// rewritten normalized in place.
func (v *Validator) NullColumnPass(ctx context.Context) (Result, error) {
	v.sink.Record(v.missingStream, "Missing Values Validation Started!!")
	res, err := v.pass(ctx, v.missingStream, func(name string, t *parser.Table, perr error) error {
		if perr != nil {
			return gerrors.Wrap(perr, gerrors.CodeNullColumn, "unreadable csv").WithContext("file", name)
		}
		if col, ok := firstNullColumn(t); ok {
			return gerrors.Newf(gerrors.CodeNullColumn, "column %q has no values", col).WithContext("file", name)
		}
		return nil
	}, "Invalid Column for the file!! File moved to Bad Raw Folder :: %s")
	v.sink.Record(v.missingStream, "Missing Values Validation Completed!!")
	return res, err
}

type check func(name string, t *parser.Table, parseErr error) error

func (v *Validator) pass(ctx context.Context, stream string, fn check, rejectMsg string) (Result, error) {
	var res Result

	names, err := v.staging.GoodFiles()
	if err != nil {
		return res, gerrors.Wrap(err, gerrors.CodeStaging, "list good staging")
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, gerrors.ContextCanceled("content validation")
		}

		path := filepath.Join(v.staging.GoodDir(), name)
		t, perr := parser.ReadFile(path)

		if rerr := fn(name, t, perr); rerr != nil {
			if err := v.staging.MoveToBad(name); err != nil {
				return res, err
			}
			v.sink.Record(stream, fmt.Sprintf(rejectMsg, name))
			res.Rejected = append(res.Rejected, Rejection{File: name, Err: rerr})
			continue
		}

		if err := parser.WriteFile(path, t); err != nil {
			return res, gerrors.Wrap(err, gerrors.CodeStaging, "rewrite file").WithContext("file", name)
		}
		res.Kept = append(res.Kept, name)
	}
	return res, nil
}

func firstNullColumn(t *parser.Table) (string, bool) {
	for i, name := range t.Header {
		if parser.AllNull(t.Column(i)) {
			return name, true
		}
	}
	return "", false
}
