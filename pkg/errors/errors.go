// Package errors provides structured errors for rawgate.
// Every error crossing a package boundary carries a Code so callers can tell
// fatal run failures apart from per-file rejections.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Configuration errors (1xx). Fatal for the run.
	CodeFileNotFound Code = "E101"
	CodeSchemaFormat Code = "E102"
	CodeConfig       Code = "E103"

	// Per-file rejections (2xx). Contained by the pipeline.
	CodeFilenameInvalid Code = "E201"
	CodeColumnCount     Code = "E202"
	CodeNullColumn      Code = "E203"
	CodeRowInsert       Code = "E204"
	CodeParseFailed     Code = "E205"

	// Storage errors (3xx). Fatal for the stage that raised them.
	CodeStoreOpen   Code = "E301"
	CodeStoreSchema Code = "E302"
	CodeStoreExport Code = "E303"
	CodeStaging     Code = "E304"
	CodeArchive     Code = "E305"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeRunLocked       Code = "E402"
	CodeModel           Code = "E403"

	CodeUnknown Code = "E999"
)

// GateError is the base error type for all rawgate errors.
type GateError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are printed sorted so
// messages are stable across runs.
func (e *GateError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *GateError) Unwrap() error {
	return e.Cause
}

// Is matches another GateError with the same code.
func (e *GateError) Is(target error) bool {
	if t, ok := target.(*GateError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *GateError) WithContext(key string, value interface{}) *GateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new GateError.
func New(code Code, message string) *GateError {
	return &GateError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new GateError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *GateError {
	return &GateError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
// It returns nil when err is nil.
func Wrap(err error, code Code, message string) *GateError {
	if err == nil {
		return nil
	}

	return &GateError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *GateError {
	if err == nil {
		return nil
	}
	return &GateError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *GateError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *GateError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// SchemaFormat creates a schema format error for a bad or missing key.
func SchemaFormat(key, reason string) *GateError {
	return New(CodeSchemaFormat, "malformed schema").
		WithContext("key", key).
		WithContext("reason", reason)
}

// ColumnCount creates a column count mismatch error.
func ColumnCount(file string, got, want int) *GateError {
	return New(CodeColumnCount, "column count mismatch").
		WithContext("file", file).
		WithContext("got", got).
		WithContext("want", want)
}

// RowInsert creates a row-level insert fault.
func RowInsert(file string, row int, err error) *GateError {
	return Wrap(err, CodeRowInsert, "row insert failed").
		WithContext("file", file).
		WithContext("row", row)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *GateError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var gErr *GateError
	if errors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var gErr *GateError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return CodeUnknown
}

// IsRejection reports whether err is a per-file rejection that the pipeline
// contains instead of returning.
func IsRejection(err error) bool {
	switch GetCode(err) {
	case CodeFilenameInvalid, CodeColumnCount, CodeNullColumn, CodeRowInsert, CodeParseFailed:
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error aborts a pipeline run.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeFileNotFound, CodeSchemaFormat, CodeConfig,
		CodeStoreOpen, CodeStoreSchema, CodeStoreExport, CodeStaging,
		CodeRunLocked:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
