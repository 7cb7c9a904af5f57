package schema

import "strings"

// Affinity is the storage class a declared type maps to. The rules follow
// SQLite's type affinity, which DuckDB also accepts for these names.
type Affinity int

const (
	AffinityText Affinity = iota
	AffinityInteger
	AffinityReal
)

func (a Affinity) String() string {
	switch a {
	case AffinityInteger:
		return "integer"
	case AffinityReal:
		return "real"
	default:
		return "text"
	}
}

// AffinityOf returns the affinity of a declared column type.
func AffinityOf(declared string) Affinity {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return AffinityReal
	default:
		return AffinityText
	}
}

// Affinity returns the column's affinity.
func (c Column) Affinity() Affinity {
	return AffinityOf(c.Type)
}
