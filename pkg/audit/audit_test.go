package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	ts := time.Date(2023, 1, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "2023-01-01/09:05:07\t\thello\n", FormatLine(ts, "hello"))
}

func TestFileSink_AppendsPerStream(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	sink.now = func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC) }

	sink.Record("nameValidationLog", "first")
	sink.Record("GeneralLog", "other")
	sink.Record("nameValidationLog", "second")
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "nameValidationLog.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"2024-02-03/04:05:06\t\tfirst\n2024-02-03/04:05:06\t\tsecond\n",
		string(data))

	// Reopening appends instead of truncating.
	sink2, err := NewFileSink(dir)
	require.NoError(t, err)
	sink2.Record("GeneralLog", "again")
	require.NoError(t, sink2.Close())

	data, err = os.ReadFile(filepath.Join(dir, "GeneralLog.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "other")
	assert.Contains(t, string(data), "again")
}

func TestMemorySink_Messages(t *testing.T) {
	m := NewMemorySink()
	Recordf(m, "a", "n=%d", 1)
	m.Record("b", "x")
	Recordf(m, "a", "n=%d", 2)

	assert.Equal(t, []string{"n=1", "n=2"}, m.Messages("a"))
	assert.Len(t, m.Entries(), 3)
}

func TestTee(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	Tee{a, b, Discard, SlogSink{}}.Record("s", "m")

	assert.Equal(t, []string{"m"}, a.Messages("s"))
	assert.Equal(t, []string{"m"}, b.Messages("s"))
}
