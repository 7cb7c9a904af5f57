package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

const trainingSchema = `{
  "SampleFileName": "creditCardFraud_021119920_010222.csv",
  "LengthOfDateStampInFile": 8,
  "LengthOfTimeStampInFile": 6,
  "NumberofColumns": 4,
  "ColName": {
    "LIMIT_BAL": "INTEGER",
    "SEX": "INTEGER",
    "AGE": "INTEGER",
    "default payment next month": "INTEGER"
  }
}`

func TestParse_TrainingKeysKeepColumnOrder(t *testing.T) {
	spec, err := Parse([]byte(trainingSchema))
	require.NoError(t, err)

	assert.Equal(t, 8, spec.DateStampLength)
	assert.Equal(t, 6, spec.TimeStampLength)
	assert.Equal(t, 4, spec.ColumnCount)
	assert.Equal(t,
		[]string{"LIMIT_BAL", "SEX", "AGE", "default payment next month"},
		spec.ColumnNames())
	assert.Equal(t, "creditCardFraud", spec.FilenamePrefix())
}

func TestParse_PredictionKeysAndYAML(t *testing.T) {
	doc := `
length_of_date_stamp_in_file: 8
length_of_time_stamp_in_file: 6
number_of_columns: 2
ColName:
  b: varchar
  a: Integer
`
	spec, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []Column{{Name: "b", Type: "varchar"}, {Name: "a", Type: "Integer"}}, spec.Columns)
	assert.Equal(t, "", spec.FilenamePrefix())
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not a mapping", `[1, 2]`},
		{"missing date length", `{"LengthOfTimeStampInFile": 6, "NumberofColumns": 1, "ColName": {"a": "INT"}}`},
		{"string length", `{"LengthOfDateStampInFile": "8", "LengthOfTimeStampInFile": 6, "NumberofColumns": 1, "ColName": {"a": "INT"}}`},
		{"zero count", `{"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 0, "ColName": {"a": "INT"}}`},
		{"columns not a map", `{"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 1, "ColName": ["a"]}`},
		{"count mismatch", `{"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 3, "ColName": {"a": "INT"}}`},
		{"injected type", `{"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 1, "ColName": {"a": "INT); DROP TABLE x; --"}}`},
		{"duplicate column", `{"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 2, "ColName": {"a": "INT", "A": "INT"}}`},
		{"empty column name", `{"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 1, "ColName": {" ": "INT"}}`},
		{"NUL in column name", `{"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 1, "ColName": {"a\u0000b": "INT"}}`},
		{"broken json", `{"LengthOfDateStampInFile": 8,`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, gerrors.IsCode(err, gerrors.CodeSchemaFormat), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, gerrors.IsCode(err, gerrors.CodeFileNotFound))
	assert.True(t, gerrors.IsFatal(err))
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema_training.json")
	require.NoError(t, os.WriteFile(path, []byte(trainingSchema), 0644))

	spec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t,
		"length_of_date_stamp_in_file:: 8\tlength_of_time_stamp_in_file:: 6\t number_of_columns:: 4",
		spec.Summary())
}

func TestDiff(t *testing.T) {
	spec := &Spec{Columns: []Column{
		{Name: "a", Type: "INTEGER"},
		{Name: "b", Type: "varchar"},
		{Name: "c", Type: "REAL"},
	}}
	existing := []Column{
		{Name: "A", Type: "integer"},
		{Name: "b", Type: "TEXT"},
		{Name: "z", Type: "TEXT"},
	}

	diff := Diff(existing, spec)
	assert.Equal(t, []Column{{Name: "c", Type: "REAL"}}, diff.AddedColumns)
	assert.Equal(t, []Column{{Name: "z", Type: "TEXT"}}, diff.ExtraColumns)
	require.Len(t, diff.TypeChanges, 1)
	assert.Equal(t, "b", diff.TypeChanges[0].Column)
	assert.False(t, diff.IsEmpty())

	assert.True(t, Diff(spec.Columns, spec).IsEmpty())
}

func TestAffinityOf(t *testing.T) {
	tests := map[string]Affinity{
		"INTEGER":       AffinityInteger,
		"bigint":        AffinityInteger,
		"Integer":       AffinityInteger,
		"varchar":       AffinityText,
		"VARCHAR(20)":   AffinityText,
		"TEXT":          AffinityText,
		"REAL":          AffinityReal,
		"FLOAT":         AffinityReal,
		"DOUBLE":        AffinityReal,
		"DECIMAL(10,2)": AffinityReal,
		"NUMERIC":       AffinityReal,
		"BLOB":          AffinityText,
		"DATE":          AffinityText,
	}
	for typ, want := range tests {
		assert.Equal(t, want, AffinityOf(typ), typ)
	}
	assert.Equal(t, AffinityReal, Column{Name: "x", Type: "float"}.Affinity())
}

func TestLoad_ShippedSchemas(t *testing.T) {
	training, err := Load(filepath.Join("..", "..", "configs", "schema_training.json"))
	require.NoError(t, err)
	assert.Equal(t, 24, training.ColumnCount)
	assert.Len(t, training.Columns, training.ColumnCount)
	assert.Equal(t, "default payment next month", training.ColumnNames()[23])

	prediction, err := Load(filepath.Join("..", "..", "configs", "schema_prediction.json"))
	require.NoError(t, err)
	assert.Equal(t, training.ColumnNames()[:23], prediction.ColumnNames())
}
