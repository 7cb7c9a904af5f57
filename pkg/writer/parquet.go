package writer

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/rawgate/pkg/schema"
)

// ParquetWriter writes table rows to Parquet using Apache Arrow. Every
// column is nullable; its Arrow type follows the declared affinity.
type ParquetWriter struct {
	cfg    Config
	cols   []Column
	schema *arrow.Schema
	writer *pqarrow.FileWriter
	rb     *array.RecordBuilder

	mu               sync.Mutex
	rowCount         int
	totalRowsWritten int64
	closed           bool
}

// arrowSchema returns the Arrow schema for the columns.
func arrowSchema(cols []Column) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		var typ arrow.DataType
		switch c.Affinity {
		case schema.AffinityInteger:
			typ = arrow.PrimitiveTypes.Int64
		case schema.AffinityReal:
			typ = arrow.PrimitiveTypes.Float64
		default:
			typ = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: c.Name, Type: typ, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(output io.Writer, cols []Column, cfg Config) (*ParquetWriter, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	allocator := memory.NewGoAllocator()
	sc := arrowSchema(cols)

	var codec compress.Compression
	switch cfg.Compression {
	case CompressionSnappy:
		codec = compress.Codecs.Snappy
	case CompressionGzip:
		codec = compress.Codecs.Gzip
	case CompressionZstd:
		codec = compress.Codecs.Zstd
	case CompressionLZ4:
		codec = compress.Codecs.Lz4
	default:
		codec = compress.Codecs.Uncompressed
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(sc, output, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	rb := array.NewRecordBuilder(allocator, sc)
	rb.Reserve(cfg.BatchSize)

	return &ParquetWriter{
		cfg:    cfg,
		cols:   cols,
		schema: sc,
		writer: fw,
		rb:     rb,
	}, nil
}

// WriteRow appends one row, flushing a record batch when it is full.
func (w *ParquetWriter) WriteRow(values []any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(values) != len(w.cols) {
		return fmt.Errorf("row has %d values, schema has %d", len(values), len(w.cols))
	}
	for i, v := range values {
		if err := appendValue(w.rb.Field(i), v); err != nil {
			return fmt.Errorf("column %q: %w", w.cols[i].Name, err)
		}
	}
	w.rowCount++

	if w.rowCount >= w.cfg.BatchSize {
		return w.flushBatch()
	}
	return nil
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch fb := b.(type) {
	case *array.Int64Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		fb.Append(n)
	case *array.Float64Builder:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		fb.Append(f)
	case *array.StringBuilder:
		fb.Append(Format(v))
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not integral", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	}
	return 0, fmt.Errorf("cannot store %T as int64", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case interface{ Float64() float64 }:
		return x.Float64(), nil
	}
	return 0, fmt.Errorf("cannot store %T as float64", v)
}

// flushBatch writes the current batch to Parquet.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	rec := w.rb.NewRecord()
	defer rec.Release()

	if err := w.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	w.totalRowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Flush flushes any buffered data.
func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch()
}

// Close flushes remaining rows and writes the Parquet footer.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	w.rb.Release()
	w.closed = true
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
