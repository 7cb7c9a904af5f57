package writer

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVWriter writes the export format: every field quoted, CRLF line
// endings, NULL as an empty quoted field.
type CSVWriter struct {
	w    *bufio.Writer
	cols int
	rows int64
}

// NewCSVWriter writes the header row to w and returns the writer.
func NewCSVWriter(w io.Writer, header []string) (*CSVWriter, error) {
	cw := &CSVWriter{w: bufio.NewWriter(w), cols: len(header)}
	fields := make([]any, len(header))
	for i, h := range header {
		fields[i] = h
	}
	if err := cw.writeRecord(fields); err != nil {
		return nil, err
	}
	return cw, nil
}

// WriteRow writes one data row.
func (c *CSVWriter) WriteRow(values []any) error {
	if len(values) != c.cols {
		return fmt.Errorf("row has %d values, header has %d", len(values), c.cols)
	}
	if err := c.writeRecord(values); err != nil {
		return err
	}
	c.rows++
	return nil
}

// Rows returns the number of data rows written.
func (c *CSVWriter) Rows() int64 {
	return c.rows
}

// Close flushes buffered output. It does not close the underlying writer.
func (c *CSVWriter) Close() error {
	return c.w.Flush()
}

func (c *CSVWriter) writeRecord(values []any) error {
	for i, v := range values {
		if i > 0 {
			if err := c.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := c.writeQuoted(Format(v)); err != nil {
			return err
		}
	}
	_, err := c.w.WriteString("\r\n")
	return err
}

func (c *CSVWriter) writeQuoted(s string) error {
	if err := c.w.WriteByte('"'); err != nil {
		return err
	}
	if _, err := c.w.WriteString(strings.ReplaceAll(s, `"`, `""`)); err != nil {
		return err
	}
	return c.w.WriteByte('"')
}

// Format renders a scanned value as export text. NULL renders empty.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case interface{ Float64() float64 }:
		return strconv.FormatFloat(x.Float64(), 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
