package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/rawgate/pkg/audit"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/parser"
	"github.com/logflow/rawgate/pkg/schema"
	"github.com/logflow/rawgate/pkg/writer"
)

var testSpec = &schema.Spec{
	ColumnCount: 3,
	Columns: []schema.Column{
		{Name: "LIMIT_BAL", Type: "INTEGER"},
		{Name: "BILL_AMT1", Type: "REAL"},
		{Name: "default payment next month", Type: "varchar"},
	},
}

type movedFiles struct {
	dir   string
	names []string
}

func (m *movedFiles) MoveToBad(name string) error {
	m.names = append(m.names, name)
	return os.Remove(filepath.Join(m.dir, name))
}

func openTest(t *testing.T) (*Loader, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	l, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "db", "Training.db")},
		WithAudit(sink, audit.DefaultStreams("Training_Main_Log")))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, sink
}

func writeGood(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Config{Dialect: "oracle"})
	require.Error(t, err)
	assert.True(t, gerrors.IsCode(err, gerrors.CodeConfig))
	assert.Contains(t, Dialects(), DialectSQLite)
}

func TestEnsureTable_Idempotent(t *testing.T) {
	l, sink := openTest(t)
	ctx := context.Background()

	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeExtend))
	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeExtend))

	cols, err := l.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSpec.Columns, cols)
	assert.Equal(t, StateSchemaEnsured, l.State())
	assert.Contains(t, sink.Messages("DbTableCreateLog"), "Tables created successfully!!")
	assert.Contains(t, sink.Messages("DataBaseConnectionLog"), "Opened Training.db database successfully")
}

func TestEnsureTable_ExtendKeepsRows(t *testing.T) {
	l, _ := openTest(t)
	ctx := context.Background()

	_, err := l.DB().ExecContext(ctx, `CREATE TABLE "Good_Raw_Data" ("limit_bal" INTEGER, "legacy" TEXT)`)
	require.NoError(t, err)
	_, err = l.DB().ExecContext(ctx, `INSERT INTO "Good_Raw_Data" VALUES (1, 'x')`)
	require.NoError(t, err)

	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeExtend))

	cols, err := l.Columns(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, "BILL_AMT1", cols[2].Name)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEnsureTable_RecreateDropsRows(t *testing.T) {
	l, _ := openTest(t)
	ctx := context.Background()

	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeExtend))
	_, err := l.DB().ExecContext(ctx, `INSERT INTO "Good_Raw_Data" VALUES (1, 2.0, '0')`)
	require.NoError(t, err)

	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeRecreate))
	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadGoodFiles_PerFileTransactions(t *testing.T) {
	l, sink := openTest(t)
	ctx := context.Background()
	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeExtend))

	good := t.TempDir()
	header := "LIMIT_BAL,BILL_AMT1,default payment next month\n"
	writeGood(t, good, map[string]string{
		"a.csv": header + "20000,3913.5,1\n120000.0,NULL,0\n",
		"b.csv": header + "1,1,1\nnot-a-number,2,0\n",
		"c.csv": "x,y\n1,2\n",
	})

	var progress []string
	l.progress = func(file string, rows int) { progress = append(progress, file) }

	reloc := &movedFiles{dir: good}
	results, err := l.LoadGoodFiles(ctx, good, reloc)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Loaded())
	assert.Equal(t, 2, results[0].Rows)
	assert.False(t, results[1].Loaded())
	assert.True(t, gerrors.IsCode(results[1].Err, gerrors.CodeRowInsert))
	assert.Zero(t, results[1].Rows)
	assert.False(t, results[2].Loaded())

	assert.Equal(t, []string{"b.csv", "c.csv"}, reloc.names)
	assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, progress)
	assert.Equal(t, StatePopulated, l.State())

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "rows of a rejected file must be rolled back")

	var nulls int
	require.NoError(t, l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "Good_Raw_Data" WHERE "BILL_AMT1" IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)

	assert.Contains(t, sink.Messages("DbInsertLog"), "File Moved Successfully b.csv")
}

func TestLoadGoodFiles_RequiresEnsure(t *testing.T) {
	l, _ := openTest(t)
	_, err := l.LoadGoodFiles(context.Background(), t.TempDir(), &movedFiles{})
	assert.True(t, gerrors.IsCode(err, gerrors.CodeStoreSchema))
}

func TestLoadGoodFiles_Canceled(t *testing.T) {
	l, _ := openTest(t)
	require.NoError(t, l.EnsureTable(context.Background(), testSpec, ModeExtend))
	good := t.TempDir()
	writeGood(t, good, map[string]string{"a.csv": "a,b,c\n1,2,3\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reloc := &movedFiles{dir: good}
	_, err := l.LoadGoodFiles(ctx, good, reloc)
	assert.True(t, gerrors.IsCode(err, gerrors.CodeContextCanceled))
	assert.Empty(t, reloc.names)
	assert.FileExists(t, filepath.Join(good, "a.csv"))
}

func TestExportCSV_RoundTrip(t *testing.T) {
	l, sink := openTest(t)
	ctx := context.Background()
	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeExtend))

	good := t.TempDir()
	writeGood(t, good, map[string]string{
		"a.csv": "LIMIT_BAL,BILL_AMT1,default payment next month\n20000,1.5,1\n30000,NULL,0\n5,6,\"a \"\"quoted\"\" value\"\n",
	})
	_, err := l.LoadGoodFiles(ctx, good, &movedFiles{dir: good})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "Training_FileFromDB", "InputFile.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0755))
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0644))

	n, err := l.ExportCSV(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, StateExported, l.State())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "\"LIMIT_BAL\",\"BILL_AMT1\",\"default payment next month\"\r\n"+
		"\"20000\",\"1.5\",\"1\"\r\n"+
		"\"30000\",\"\",\"0\"\r\n"+
		"\"5\",\"6\",\"a \"\"quoted\"\" value\"\r\n", string(raw))

	back, err := parser.ReadFile(out)
	require.NoError(t, err)
	count, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int(count), len(back.Rows))
	assert.Equal(t, testSpec.ColumnNames(), back.Header)
	assert.Contains(t, sink.Messages("ExportToCsv"), "File exported successfully!!!")
}

func TestExportParquet(t *testing.T) {
	l, _ := openTest(t)
	ctx := context.Background()
	require.NoError(t, l.EnsureTable(ctx, testSpec, ModeExtend))
	_, err := l.DB().ExecContext(ctx, `INSERT INTO "Good_Raw_Data" VALUES (1, 2.5, 'x'), (NULL, NULL, NULL)`)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "snap", "InputFile.parquet")
	require.NoError(t, l.ExportParquet(ctx, out, writer.DefaultConfig()))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		in      string
		aff     schema.Affinity
		want    any
		wantErr bool
	}{
		{"42", schema.AffinityInteger, int64(42), false},
		{" 2.0 ", schema.AffinityInteger, int64(2), false},
		{"2.5", schema.AffinityInteger, nil, true},
		{"abc", schema.AffinityInteger, nil, true},
		{"9223372036854775807", schema.AffinityInteger, int64(math.MaxInt64), false},
		{"-9223372036854775808", schema.AffinityInteger, int64(math.MinInt64), false},
		{"9223372036854775808", schema.AffinityInteger, nil, true},
		{"-9223372036854775809", schema.AffinityInteger, nil, true},
		{"1e19", schema.AffinityInteger, nil, true},
		{"-1e19", schema.AffinityInteger, nil, true},
		{"9.3e18", schema.AffinityInteger, nil, true},
		{"1e3", schema.AffinityReal, float64(1000), false},
		{"x", schema.AffinityReal, nil, true},
		{"NULL", schema.AffinityReal, nil, false},
		{"", schema.AffinityText, nil, false},
		{" kept ", schema.AffinityText, " kept ", false},
	}
	for _, tt := range tests {
		got, err := ConvertValue(tt.in, tt.aff)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("recreate")
	require.NoError(t, err)
	assert.Equal(t, ModeRecreate, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeExtend, m)
	_, err = ParseMode("truncate")
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"a ""b"""`, QuoteIdent(`a "b"`))
}
