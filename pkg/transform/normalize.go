// Package transform prepares validated files for loading.
package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/logflow/rawgate/pkg/audit"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/parser"
)

// Stats counts what Normalize did.
type Stats struct {
	Files int
	Cells int
}

// Normalize rewrites every file in goodDir so each missing cell holds
// parser.NullMarker. Other values and the column order are preserved.
// A file that no longer parses is left as is; the loader rejects it.
func Normalize(ctx context.Context, goodDir string, sink audit.Sink, stream string) (Stats, error) {
	var st Stats
	if sink == nil {
		sink = audit.Discard
	}

	entries, err := os.ReadDir(goodDir)
	if err != nil {
		return st, gerrors.Wrap(err, gerrors.CodeStaging, "list good staging")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return st, gerrors.ContextCanceled("normalize")
		}

		path := filepath.Join(goodDir, name)
		t, err := parser.ReadFile(path)
		if err != nil {
			sink.Record(stream, fmt.Sprintf("Data Transformation failed for %s: %v", name, err))
			continue
		}

		st.Cells += fillNulls(t)
		if err := parser.WriteFile(path, t); err != nil {
			return st, gerrors.Wrap(err, gerrors.CodeStaging, "rewrite file").WithContext("file", name)
		}
		st.Files++
		sink.Record(stream, fmt.Sprintf(" %s: File Transformed successfully!!", name))
	}
	return st, nil
}

func fillNulls(t *parser.Table) int {
	n := 0
	for _, row := range t.Rows {
		for i, v := range row {
			if parser.IsNull(v) && v != parser.NullMarker {
				row[i] = parser.NullMarker
				n++
			}
		}
	}
	return n
}
