package parser

import "strings"

// NullMarker is the explicit null written into normalized files. The loader
// binds it as SQL NULL.
const NullMarker = "NULL"

// nullMarkers are the cell values read as missing. This is the set pandas
// treats as NaN by default, which is what batch producers already emit.
var nullMarkers = map[string]struct{}{
	"":         {},
	"NA":       {},
	"N/A":      {},
	"n/a":      {},
	"NULL":     {},
	"null":     {},
	"NaN":      {},
	"nan":      {},
	"-NaN":     {},
	"-nan":     {},
	"None":     {},
	"<NA>":     {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"1.#IND":   {},
	"-1.#IND":  {},
	"1.#QNAN":  {},
	"-1.#QNAN": {},
}

// IsNull reports whether a cell value counts as missing.
func IsNull(v string) bool {
	_, ok := nullMarkers[strings.TrimSpace(v)]
	return ok
}

// AllNull reports whether every value is missing. An empty slice is
// vacuously all null.
func AllNull(values []string) bool {
	for _, v := range values {
		if !IsNull(v) {
			return false
		}
	}
	return true
}
