package runlock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

func TestFile_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewFile(t.TempDir(), 0)

	lease, err := l.Acquire(ctx, "run-1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "run-2")
	require.Error(t, err)
	assert.True(t, gerrors.IsCode(err, gerrors.CodeRunLocked))
	assert.Contains(t, err.Error(), "run-1")

	require.NoError(t, lease.Release(ctx))
	assert.NoFileExists(t, l.Path)

	lease, err = l.Acquire(ctx, "run-2")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestFile_TakesOverStaleLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := NewFile(dir, time.Minute)

	old := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), []byte("crashed\n"+old+"\n"), 0644))

	lease, err := l.Acquire(ctx, "run-3")
	require.NoError(t, err)

	holder, _ := readLockFile(l.Path)
	assert.Equal(t, "run-3", holder)
	require.NoError(t, lease.Release(ctx))
}

func TestFile_ReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := NewFile(dir, 0)

	lease, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(l.Path, []byte("b\n0\n"), 0644))

	require.NoError(t, lease.Release(ctx))
	assert.FileExists(t, l.Path)
}

func TestNop(t *testing.T) {
	lease, err := Nop{}.Acquire(context.Background(), "x")
	require.NoError(t, err)
	assert.NoError(t, lease.Release(context.Background()))
}

func TestNewRedis_DefaultTTL(t *testing.T) {
	l := NewRedis(nil, "rawgate:lock:training", 0)
	assert.Equal(t, time.Hour, l.TTL)
	assert.Equal(t, "rawgate:lock:training", l.Key)
}
