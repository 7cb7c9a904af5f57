// Package validation checks inputs that arrive from outside the process:
// batch paths posted to the server and column names read from schema
// documents.
package validation

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// MaxColumnNameLength is the maximum column name length.
const MaxColumnNameLength = 256

// ValidateBatchPath cleans a batch directory path supplied by a caller.
// Paths that climb out of their base with ".." are refused.
func ValidateBatchPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", gerrors.New(gerrors.CodeConfig, "filepath is required")
	}

	if len(path) > MaxPathLength {
		return "", gerrors.New(gerrors.CodeConfig, "path too long").
			WithContext("maxLength", MaxPathLength)
	}

	if strings.ContainsRune(path, 0) {
		return "", gerrors.New(gerrors.CodeConfig, "path contains a NUL byte")
	}

	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return "", gerrors.New(gerrors.CodeConfig, "path traversal not allowed").
				WithContext("path", path)
		}
	}
	return cleaned, nil
}

// ValidateColumnName validates a declared column name.
func ValidateColumnName(name string) error {
	if name == "" {
		return gerrors.New(gerrors.CodeSchemaFormat, "empty column name")
	}

	if len(name) > MaxColumnNameLength {
		return gerrors.New(gerrors.CodeSchemaFormat, "column name too long").
			WithContext("name", name[:50]+"...").
			WithContext("maxLength", MaxColumnNameLength)
	}

	if !utf8.ValidString(name) {
		return gerrors.New(gerrors.CodeSchemaFormat, "column name contains invalid UTF-8")
	}

	if strings.ContainsRune(name, 0) {
		return gerrors.New(gerrors.CodeSchemaFormat, "column name contains a NUL byte")
	}

	return nil
}
