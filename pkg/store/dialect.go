package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/logflow/rawgate/pkg/writer"
)

// Dialect adapts the loader to one database/sql driver.
type Dialect interface {
	// Name is the value selected by configuration.
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// DSN builds the data source name for a database path. An empty path
	// selects an in-memory database where the driver supports it.
	DSN(path string) string
	// ColumnsQuery returns (name, type) for every column of the table
	// named by its single argument, in ordinal order. No rows means the
	// table does not exist.
	ColumnsQuery() string
	// MaxOpenConns limits the pool; zero leaves the default.
	MaxOpenConns() int
}

// ParquetCopier is implemented by dialects that can write a Parquet file
// from a query themselves.
type ParquetCopier interface {
	CopyParquetSQL(query, path string, c writer.CompressionType) string
}

var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// RegisterDialect makes a dialect available by name. It panics on a
// duplicate name, like sql.Register.
func RegisterDialect(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	if _, dup := dialects[d.Name()]; dup {
		panic("store: RegisterDialect called twice for " + d.Name())
	}
	dialects[d.Name()] = d
}

// Dialects returns the registered dialect names, sorted.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupDialect(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (registered: %s)", name, strings.Join(namesLocked(), ", "))
	}
	return d, nil
}

func namesLocked() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// QuoteIdent quotes a table or column name for both supported dialects.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
