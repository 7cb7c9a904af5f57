// Package audit records pipeline decisions to append-only text streams.
//
// Each pipeline stage writes to its own stream. A stream line has the form
//
//	2006-01-02/15:04:05\t\tmessage
//
// Sinks are opened once by whoever starts a run and closed by them; stages
// only call Record.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink receives audit records.
type Sink interface {
	Record(stream, message string)
}

// Recordf formats and records a message.
func Recordf(s Sink, stream, format string, args ...interface{}) {
	s.Record(stream, fmt.Sprintf(format, args...))
}

// Streams names the stream each pipeline stage writes to.
type Streams struct {
	Main        string `yaml:"main"`
	Schema      string `yaml:"schema"`
	Name        string `yaml:"name"`
	Column      string `yaml:"column"`
	Missing     string `yaml:"missing"`
	Transform   string `yaml:"transform"`
	Connection  string `yaml:"connection"`
	TableCreate string `yaml:"table_create"`
	Insert      string `yaml:"insert"`
	General     string `yaml:"general"`
	Export      string `yaml:"export"`
}

// DefaultStreams returns the stream names used by both variants; only the
// main stream differs.
func DefaultStreams(main string) Streams {
	return Streams{
		Main:        main,
		Schema:      "valuesfromSchemaValidationLog",
		Name:        "nameValidationLog",
		Column:      "columnValidationLog",
		Missing:     "missingValuesInColumn",
		Transform:   "dataTransformLog",
		Connection:  "DataBaseConnectionLog",
		TableCreate: "DbTableCreateLog",
		Insert:      "DbInsertLog",
		General:     "GeneralLog",
		Export:      "ExportToCsv",
	}
}

// FormatLine renders one stream line.
func FormatLine(t time.Time, message string) string {
	return t.Format("2006-01-02") + "/" + t.Format("15:04:05") + "\t\t" + message + "\n"
}

// FileSink appends each stream to <dir>/<stream>.txt.
type FileSink struct {
	mu    sync.Mutex
	dir   string
	files map[string]*os.File
	now   func() time.Time
	err   error
}

// NewFileSink creates the log directory and returns a sink writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileSink{
		dir:   dir,
		files: make(map[string]*os.File),
		now:   time.Now,
	}, nil
}

// Dir returns the directory holding the stream files.
func (s *FileSink) Dir() string {
	return s.dir
}

// Record appends a line to the named stream. Write failures are kept and
// reported by Err and Close.
func (s *FileSink) Record(stream, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(stream)
	if err != nil {
		s.keep(err)
		return
	}
	if _, err := f.WriteString(FormatLine(s.now(), message)); err != nil {
		s.keep(fmt.Errorf("write %s: %w", stream, err))
	}
}

func (s *FileSink) open(stream string) (*os.File, error) {
	if f, ok := s.files[stream]; ok {
		return f, nil
	}
	path := filepath.Join(s.dir, stream+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", stream, err)
	}
	s.files[stream] = f
	return f, nil
}

func (s *FileSink) keep(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Err returns the first write error, if any.
func (s *FileSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes every open stream.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, f := range s.files {
		if err := f.Close(); err != nil {
			s.keep(fmt.Errorf("close %s: %w", name, err))
		}
		delete(s.files, name)
	}
	return s.err
}

// Entry is a record held by MemorySink.
type Entry struct {
	Stream  string
	Message string
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(stream, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{Stream: stream, Message: message})
}

// Entries returns a copy of all records.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry{}, m.entries...)
}

// Messages returns the messages recorded on one stream, in order.
func (m *MemorySink) Messages(stream string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, e := range m.entries {
		if e.Stream == stream {
			out = append(out, e.Message)
		}
	}
	return out
}

// SlogSink mirrors audit records to a structured logger at debug level.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Record(stream, message string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Debug(message, slog.String("stream", stream))
}

// Tee fans records out to several sinks.
type Tee []Sink

func (t Tee) Record(stream, message string) {
	for _, s := range t {
		s.Record(stream, message)
	}
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(string, string) {}
