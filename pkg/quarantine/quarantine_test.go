package quarantine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/rawgate/pkg/audit"
	"github.com/logflow/rawgate/pkg/naming"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestReset_Idempotent(t *testing.T) {
	root := t.TempDir()
	s := New(root, filepath.Join(root, "archive"))

	require.NoError(t, s.Reset())
	writeFile(t, filepath.Join(s.GoodDir(), "left.csv"), "x")
	writeFile(t, filepath.Join(s.BadDir(), "over.csv"), "y")

	require.NoError(t, s.Reset())
	require.NoError(t, s.Reset())

	good, err := s.GoodFiles()
	require.NoError(t, err)
	bad, err := s.BadFiles()
	require.NoError(t, err)
	assert.Empty(t, good)
	assert.Empty(t, bad)
	assert.DirExists(t, s.GoodDir())
	assert.DirExists(t, s.BadDir())
}

func TestAdmit_CopiesAndLeavesSource(t *testing.T) {
	root := t.TempDir()
	batch := filepath.Join(root, "batch")
	s := New(filepath.Join(root, "stage"), filepath.Join(root, "archive"))
	require.NoError(t, s.Reset())

	src := filepath.Join(batch, "a.csv")
	writeFile(t, src, "a\n1\n")

	dst, err := s.Admit(src, naming.Valid)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.GoodDir(), "a.csv"), dst)
	assert.FileExists(t, src)

	_, err = s.Admit(src, naming.Invalid)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(s.BadDir(), "a.csv"))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(data))
}

func TestMoveToBad(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())
	require.NoError(t, s.Reset())
	writeFile(t, filepath.Join(s.GoodDir(), "f.csv"), "x")

	require.NoError(t, s.MoveToBad("f.csv"))
	assert.NoFileExists(t, filepath.Join(s.GoodDir(), "f.csv"))
	assert.FileExists(t, filepath.Join(s.BadDir(), "f.csv"))

	assert.Error(t, s.MoveToBad("missing.csv"))
}

type recordingMirror struct {
	keys []string
	fail bool
}

func (m *recordingMirror) Key(parts ...string) string {
	return filepath.ToSlash(filepath.Join(append([]string{"rejects"}, parts...)...))
}

func (m *recordingMirror) Upload(_ context.Context, key, _ string) error {
	if m.fail {
		return errors.New("unreachable")
	}
	m.keys = append(m.keys, key)
	return nil
}

func TestArchiveBad(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "archive")
	sink := audit.NewMemorySink()
	mirror := &recordingMirror{}
	s := New(filepath.Join(root, "stage"), archive, WithAudit(sink, "GeneralLog"), WithMirror(mirror))
	require.NoError(t, s.Reset())

	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)
	folder := filepath.Join(archive, "BadData_2024-03-09_070501")
	writeFile(t, filepath.Join(folder, "dup.csv"), "original")
	writeFile(t, filepath.Join(s.BadDir(), "dup.csv"), "rerun")
	writeFile(t, filepath.Join(s.BadDir(), "b.csv"), "b")

	res, err := s.ArchiveBad(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, folder, res.Folder)
	assert.Equal(t, []string{"b.csv"}, res.Moved)
	assert.Equal(t, []string{"dup.csv"}, res.Skipped)
	assert.NoDirExists(t, s.BadDir())
	assert.FileExists(t, filepath.Join(folder, "b.csv"))

	data, err := os.ReadFile(filepath.Join(folder, "dup.csv"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	assert.Equal(t, []string{"rejects/BadData_2024-03-09_070501/b.csv"}, mirror.keys)
	assert.Contains(t, sink.Messages("GeneralLog"), "Bad Raw Data Folder Deleted successfully!!")
}

func TestArchiveBad_MirrorFailureIsRecorded(t *testing.T) {
	sink := audit.NewMemorySink()
	s := New(t.TempDir(), t.TempDir(), WithAudit(sink, "GeneralLog"), WithMirror(&recordingMirror{fail: true}))
	require.NoError(t, s.Reset())
	writeFile(t, filepath.Join(s.BadDir(), "x.csv"), "x")

	res, err := s.ArchiveBad(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"x.csv"}, res.Moved)
	msgs := sink.Messages("GeneralLog")
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[1], "Error while mirroring x.csv")
	assert.Contains(t, msgs[1], "unreachable")
}

func TestArchiveBad_NoBadStaging(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())
	res, err := s.ArchiveBad(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, res.Folder)
}

func TestPurgeGood(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())
	require.NoError(t, s.Reset())
	writeFile(t, filepath.Join(s.GoodDir(), "f.csv"), "x")

	require.NoError(t, s.PurgeGood())
	assert.NoDirExists(t, s.GoodDir())
	require.NoError(t, s.PurgeGood())
}

func TestListArchives(t *testing.T) {
	root := t.TempDir()
	older := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	newer := older.Add(time.Hour)

	writeFile(t, filepath.Join(root, FolderName(older), "a.csv"), "a")
	writeFile(t, filepath.Join(root, FolderName(newer), "b.csv"), "b")
	writeFile(t, filepath.Join(root, FolderName(newer), "c.csv"), "c")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "BadData_garbage"), 0755))
	writeFile(t, filepath.Join(root, "stray.txt"), "")

	list, err := ListArchives(root)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, FolderName(newer), list[0].Name)
	assert.Equal(t, 2, list[0].Files)
	assert.Equal(t, 1, list[1].Files)

	list, err = ListArchives(filepath.Join(root, "absent"))
	require.NoError(t, err)
	assert.Empty(t, list)
}
