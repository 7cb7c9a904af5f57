// Package store loads validated batch files into the destination table and
// exports the table as the snapshot consumed downstream.
//
// A Loader is bound to one database and one table. EnsureTable brings the
// table in line with the schema, LoadGoodFiles inserts each staged file in
// its own transaction, and ExportCSV and ExportParquet write the snapshot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/logflow/rawgate/pkg/audit"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/schema"
)

// DefaultTable is the destination table name.
const DefaultTable = "Good_Raw_Data"

// Mode selects how EnsureTable treats an existing table.
type Mode int

const (
	// ModeExtend keeps existing rows and adds missing columns.
	ModeExtend Mode = iota
	// ModeRecreate drops the table first.
	ModeRecreate
)

func (m Mode) String() string {
	if m == ModeRecreate {
		return "recreate"
	}
	return "extend"
}

// ParseMode parses "extend" or "recreate".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "extend":
		return ModeExtend, nil
	case "recreate":
		return ModeRecreate, nil
	}
	return ModeExtend, fmt.Errorf("unknown table mode %q", s)
}

// State tracks the destination table across one run.
type State string

const (
	StateStale         State = "stale"
	StateSchemaEnsured State = "schema_ensured"
	StatePopulated     State = "populated"
	StateExported      State = "exported"
)

// Config selects the database and table.
type Config struct {
	Dialect string `yaml:"dialect"`
	Path    string `yaml:"path"`
	Table   string `yaml:"table"`
}

// Loader owns one database handle.
type Loader struct {
	db      *sql.DB
	dialect Dialect
	cfg     Config
	spec    *schema.Spec
	state   State

	sink     audit.Sink
	streams  audit.Streams
	progress func(file string, rows int)
}

// Option configures a Loader.
type Option func(*Loader)

// WithAudit records store events on the connection, table, insert and
// export streams.
func WithAudit(sink audit.Sink, streams audit.Streams) Option {
	return func(l *Loader) {
		l.sink = sink
		l.streams = streams
	}
}

// WithProgress calls fn after each file is loaded or rejected with the
// number of rows committed.
func WithProgress(fn func(file string, rows int)) Option {
	return func(l *Loader) {
		l.progress = fn
	}
}

// Open opens the database for cfg, creating the parent directory of a file
// database.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Loader, error) {
	if cfg.Dialect == "" {
		cfg.Dialect = DialectSQLite
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	l := &Loader{cfg: cfg, state: StateStale, sink: audit.Discard}
	for _, opt := range opts {
		opt(l)
	}

	d, err := lookupDialect(cfg.Dialect)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeConfig, "select dialect")
	}
	l.dialect = d

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, gerrors.Wrap(err, gerrors.CodeStoreOpen, "create database directory")
		}
	}

	db, err := sql.Open(d.DriverName(), d.DSN(cfg.Path))
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeStoreOpen, "open database").WithContext("dialect", d.Name())
	}
	if n := d.MaxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, gerrors.Wrap(err, gerrors.CodeStoreOpen, "connect database").WithContext("path", cfg.Path)
	}

	l.db = db
	l.record(l.streams.Connection, fmt.Sprintf("Opened %s database successfully", l.name()))
	return l, nil
}

// Close releases the database handle.
func (l *Loader) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	l.record(l.streams.Connection, fmt.Sprintf("Closed %s database successfully", l.name()))
	return err
}

// DB exposes the handle for read-only inspection.
func (l *Loader) DB() *sql.DB { return l.db }

// Table returns the destination table name.
func (l *Loader) Table() string { return l.cfg.Table }

// State returns the table state reached in this run.
func (l *Loader) State() State { return l.state }

// Columns returns the table's columns in ordinal order. An absent table
// has none.
func (l *Loader) Columns(ctx context.Context) ([]schema.Column, error) {
	rows, err := l.db.QueryContext(ctx, l.dialect.ColumnsQuery(), l.cfg.Table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// EnsureTable makes the table hold every column spec declares. In
// ModeRecreate an existing table is dropped first. An existing table is
// extended with missing columns; an absent one is created. Running it
// twice for the same spec changes nothing the second time.
func (l *Loader) EnsureTable(ctx context.Context, spec *schema.Spec, mode Mode) error {
	table := QuoteIdent(l.cfg.Table)

	if mode == ModeRecreate {
		if _, err := l.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return l.schemaErr(err, "drop table")
		}
	}

	existing, err := l.Columns(ctx)
	if err != nil {
		return l.schemaErr(err, "inspect table")
	}

	if len(existing) == 0 {
		defs := make([]string, len(spec.Columns))
		for i, c := range spec.Columns {
			defs[i] = QuoteIdent(c.Name) + " " + c.Type
		}
		stmt := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return l.schemaErr(err, "create table")
		}
	} else {
		diff := schema.Diff(existing, spec)
		for _, c := range diff.AddedColumns {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, QuoteIdent(c.Name), c.Type)
			if _, err := l.db.ExecContext(ctx, stmt); err != nil {
				return l.schemaErr(err, "add column")
			}
		}
		for _, tc := range diff.TypeChanges {
			l.record(l.streams.TableCreate, fmt.Sprintf("Column %s is stored as %s, schema declares %s", tc.Column, tc.OldType, tc.NewType))
		}
		for _, c := range diff.ExtraColumns {
			l.record(l.streams.TableCreate, fmt.Sprintf("Column %s is not declared by the schema", c.Name))
		}
	}

	l.spec = spec
	l.state = StateSchemaEnsured
	l.record(l.streams.TableCreate, "Tables created successfully!!")
	return nil
}

func (l *Loader) schemaErr(err error, op string) error {
	l.record(l.streams.TableCreate, fmt.Sprintf("Error while creating table: %v", err))
	return gerrors.Wrap(err, gerrors.CodeStoreSchema, op).WithContext("table", l.cfg.Table)
}

func (l *Loader) name() string {
	if l.cfg.Path == "" {
		return "in-memory"
	}
	return filepath.Base(l.cfg.Path)
}

func (l *Loader) record(stream, msg string) {
	if stream != "" {
		l.sink.Record(stream, msg)
	}
}
