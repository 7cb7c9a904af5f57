package schema

import "strings"

// SchemaDiff describes how an existing table differs from a Spec.
type SchemaDiff struct {
	// AddedColumns are declared columns the table lacks, in declared order.
	AddedColumns []Column
	// ExtraColumns are table columns the Spec does not declare.
	ExtraColumns []Column
	// TypeChanges are columns present on both sides with different types.
	TypeChanges []TypeChange
}

// TypeChange represents a declared type that differs from the stored one.
type TypeChange struct {
	Column  string
	OldType string
	NewType string
}

// IsEmpty reports whether the table already matches the Spec.
func (d *SchemaDiff) IsEmpty() bool {
	return len(d.AddedColumns) == 0 && len(d.ExtraColumns) == 0 && len(d.TypeChanges) == 0
}

// Diff compares the columns of an existing table against the Spec.
// Column names compare case-insensitively, as SQL identifiers do.
func Diff(existing []Column, spec *Spec) *SchemaDiff {
	diff := &SchemaDiff{}

	have := make(map[string]Column, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = c
	}
	want := make(map[string]bool, len(spec.Columns))

	for _, c := range spec.Columns {
		key := strings.ToLower(c.Name)
		want[key] = true

		old, ok := have[key]
		if !ok {
			diff.AddedColumns = append(diff.AddedColumns, c)
			continue
		}
		if normalizeType(old.Type) != normalizeType(c.Type) {
			diff.TypeChanges = append(diff.TypeChanges, TypeChange{
				Column:  c.Name,
				OldType: old.Type,
				NewType: c.Type,
			})
		}
	}

	for _, c := range existing {
		if !want[strings.ToLower(c.Name)] {
			diff.ExtraColumns = append(diff.ExtraColumns, c)
		}
	}

	return diff
}

func normalizeType(t string) string {
	return strings.Join(strings.Fields(strings.ToUpper(t)), " ")
}
