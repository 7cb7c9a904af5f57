// Package duckdb registers the DuckDB dialect with the store. Import it for
// its side effect; it requires cgo.
package duckdb

import (
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/rawgate/pkg/store"
	"github.com/logflow/rawgate/pkg/writer"
)

// Name selects this dialect in configuration.
const Name = "duckdb"

type dialect struct{}

func (dialect) Name() string           { return Name }
func (dialect) DriverName() string     { return "duckdb" }
func (dialect) DSN(path string) string { return path }
func (dialect) MaxOpenConns() int      { return 1 }

func (dialect) ColumnsQuery() string {
	return `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_name = ? ORDER BY ordinal_position`
}

// CopyParquetSQL uses DuckDB's own Parquet writer.
func (dialect) CopyParquetSQL(query, path string, c writer.CompressionType) string {
	compression := "snappy"
	switch c {
	case writer.CompressionGzip:
		compression = "gzip"
	case writer.CompressionZstd:
		compression = "zstd"
	case writer.CompressionNone:
		compression = "uncompressed"
	}
	return fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT PARQUET, COMPRESSION '%s')`,
		query, strings.ReplaceAll(path, "'", "''"), compression)
}

func init() {
	store.RegisterDialect(dialect{})
}
