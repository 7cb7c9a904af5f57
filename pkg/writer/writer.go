// Package writer renders table snapshots: the CSV export consumed by
// preprocessing and an optional Parquet copy for columnar readers.
package writer

import (
	"github.com/logflow/rawgate/pkg/schema"
)

// RowWriter receives rows in column order. A nil value is SQL NULL.
// Other values are int64, float64, string or []byte as database/sql
// scans them.
type RowWriter interface {
	WriteRow(values []any) error
	Close() error
}

// Column describes one output column.
type Column struct {
	Name     string
	Affinity schema.Affinity
}

// ColumnsOf maps declared schema columns to output columns.
func ColumnsOf(cols []schema.Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Column{Name: c.Name, Affinity: c.Affinity()}
	}
	return out
}

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of rows per Arrow record batch.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   8192,
		Compression: CompressionSnappy,
	}
}
