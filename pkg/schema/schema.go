// Package schema loads the validation rules a batch is checked against:
// the expected columns and their declared types, the column count, and the
// lengths of the date and time stamps embedded in batch file names.
//
// The schema document is JSON or YAML. It is decoded through yaml.v3 nodes
// so the declared column order survives, which a Go map would lose.
package schema

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/validation"
)

// Column is a declared destination column.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Spec is an immutable set of validation rules.
type Spec struct {
	SampleFileName  string
	DateStampLength int
	TimeStampLength int
	ColumnCount     int
	Columns         []Column
}

// Accepted spellings for each required key. The first two come from the
// training and prediction schema files respectively.
var (
	keysColumnCount = []string{"NumberofColumns", "number_of_columns", "expected_column_count"}
	keysColumns     = []string{"ColName", "expected_column_names"}
	keysDateLength  = []string{"LengthOfDateStampInFile", "length_of_date_stamp_in_file", "date_stamp_length"}
	keysTimeLength  = []string{"LengthOfTimeStampInFile", "length_of_time_stamp_in_file", "time_stamp_length"}
	keysSample      = []string{"SampleFileName", "sample_file_name"}
)

// typePattern restricts declared types to plain SQL type names so they can
// be spliced into DDL.
var typePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 _(),]*$`)

// Load reads and parses the schema document at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.FileNotFound(path)
		}
		return nil, gerrors.Wrap(err, gerrors.CodeSchemaFormat, "read schema").WithContext("path", path)
	}

	return Parse(data)
}

// Parse decodes a schema document.
func Parse(data []byte) (*Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeSchemaFormat, "decode schema")
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, gerrors.SchemaFormat("document", "empty")
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, gerrors.SchemaFormat("document", "top level is not a mapping")
	}

	fields := make(map[string]*yaml.Node, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		fields[root.Content[i].Value] = root.Content[i+1]
	}

	spec := &Spec{}
	var err error

	if spec.DateStampLength, err = positiveInt(fields, keysDateLength); err != nil {
		return nil, err
	}
	if spec.TimeStampLength, err = positiveInt(fields, keysTimeLength); err != nil {
		return nil, err
	}
	if spec.ColumnCount, err = positiveInt(fields, keysColumnCount); err != nil {
		return nil, err
	}
	if spec.Columns, err = columns(fields); err != nil {
		return nil, err
	}
	if len(spec.Columns) != spec.ColumnCount {
		return nil, gerrors.SchemaFormat(keysColumnCount[0],
			fmt.Sprintf("declares %d columns but %d are named", spec.ColumnCount, len(spec.Columns)))
	}

	if node, key := lookup(fields, keysSample); node != nil {
		if node.Kind != yaml.ScalarNode {
			return nil, gerrors.SchemaFormat(key, "not a string")
		}
		spec.SampleFileName = node.Value
	}

	return spec, nil
}

func lookup(fields map[string]*yaml.Node, keys []string) (*yaml.Node, string) {
	for _, k := range keys {
		if n, ok := fields[k]; ok {
			return n, k
		}
	}
	return nil, keys[0]
}

func positiveInt(fields map[string]*yaml.Node, keys []string) (int, error) {
	node, key := lookup(fields, keys)
	if node == nil {
		return 0, gerrors.SchemaFormat(key, "missing")
	}
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!int" {
		return 0, gerrors.SchemaFormat(key, "not an integer")
	}
	var v int
	if err := node.Decode(&v); err != nil {
		return 0, gerrors.SchemaFormat(key, err.Error())
	}
	if v <= 0 {
		return 0, gerrors.SchemaFormat(key, "must be positive")
	}
	return v, nil
}

func columns(fields map[string]*yaml.Node) ([]Column, error) {
	node, key := lookup(fields, keysColumns)
	if node == nil {
		return nil, gerrors.SchemaFormat(key, "missing")
	}
	if node.Kind != yaml.MappingNode {
		return nil, gerrors.SchemaFormat(key, "not a mapping of column name to type")
	}
	if len(node.Content) == 0 {
		return nil, gerrors.SchemaFormat(key, "no columns declared")
	}

	seen := make(map[string]bool, len(node.Content)/2)
	cols := make([]Column, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := strings.TrimSpace(node.Content[i].Value)
		typ := strings.TrimSpace(node.Content[i+1].Value)

		if err := validation.ValidateColumnName(name); err != nil {
			return nil, gerrors.Wrap(err, gerrors.CodeSchemaFormat, "malformed schema").WithContext("key", key)
		}
		if node.Content[i+1].Kind != yaml.ScalarNode || !typePattern.MatchString(typ) {
			return nil, gerrors.SchemaFormat(key, fmt.Sprintf("column %q has invalid type %q", name, typ))
		}
		lower := strings.ToLower(name)
		if seen[lower] {
			return nil, gerrors.SchemaFormat(key, fmt.Sprintf("duplicate column %q", name))
		}
		seen[lower] = true

		cols = append(cols, Column{Name: name, Type: typ})
	}
	return cols, nil
}

// ColumnNames returns the declared names in order.
func (s *Spec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// FilenamePrefix derives the batch file prefix from the sample file name,
// e.g. "creditCardFraud" from "creditCardFraud_021119920_010222.csv".
// It returns "" when no sample is declared.
func (s *Spec) FilenamePrefix() string {
	if s.SampleFileName == "" {
		return ""
	}
	name := strings.TrimSuffix(s.SampleFileName, ".csv")
	if i := strings.Index(name, "_"); i > 0 {
		return name[:i]
	}
	return ""
}

// Summary renders the values recorded when a schema is loaded.
func (s *Spec) Summary() string {
	return fmt.Sprintf("length_of_date_stamp_in_file:: %d\tlength_of_time_stamp_in_file:: %d\t number_of_columns:: %d",
		s.DateStampLength, s.TimeStampLength, s.ColumnCount)
}
