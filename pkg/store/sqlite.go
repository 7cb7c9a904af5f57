package store

import (
	_ "modernc.org/sqlite"
)

// DialectSQLite is the default dialect, backed by modernc.org/sqlite.
const DialectSQLite = "sqlite"

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return DialectSQLite }
func (sqliteDialect) DriverName() string { return "sqlite" }
func (sqliteDialect) MaxOpenConns() int  { return 1 }

func (sqliteDialect) DSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	return path + "?_pragma=busy_timeout(5000)"
}

func (sqliteDialect) ColumnsQuery() string {
	return `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
}

func init() {
	RegisterDialect(sqliteDialect{})
}
