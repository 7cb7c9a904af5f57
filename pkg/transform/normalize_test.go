package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/rawgate/pkg/audit"
)

func TestNormalize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x,y,z\n1,,NaN\n N/A ,b,NULL\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.csv"), []byte("x,y\n1,2,3\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	sink := audit.NewMemorySink()
	st, err := Normalize(context.Background(), dir, sink, "dataTransformLog")
	require.NoError(t, err)

	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 3, st.Cells)

	data, err := os.ReadFile(filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x,y,z\n1,NULL,NULL\nNULL,b,NULL\n", string(data))

	raw, err := os.ReadFile(filepath.Join(dir, "broken.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2,3\n", string(raw))

	msgs := sink.Messages("dataTransformLog")
	require.Len(t, msgs, 2)
	assert.Equal(t, " a.csv: File Transformed successfully!!", msgs[0])
	assert.Contains(t, msgs[1], "broken.csv")
}

func TestNormalize_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("x\n\n"), 0644))

	_, err := Normalize(context.Background(), dir, nil, "t")
	require.NoError(t, err)
	first, _ := os.ReadFile(path)

	st, err := Normalize(context.Background(), dir, nil, "t")
	require.NoError(t, err)
	second, _ := os.ReadFile(path)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, st.Cells)
}

func TestNormalize_MissingDir(t *testing.T) {
	_, err := Normalize(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, "t")
	assert.Error(t, err)
}
