package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 100*time.Millisecond, nil)
	require.NoError(t, err)

	var runs atomic.Int32
	w.OnBatch = func(context.Context) error {
		runs.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644))
	}

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_StopsWithTimerArmed(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, time.Hour, nil)
	require.NoError(t, err)

	var runs atomic.Int32
	w.OnBatch = func(context.Context) error {
		runs.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, name := range []string{"a.csv", "b.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644))
	}
	time.Sleep(200 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Zero(t, runs.Load())
}

func TestWatcher_WaitsForRunInFlight(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 20*time.Millisecond, nil)
	require.NoError(t, err)

	started := make(chan struct{})
	var finished atomic.Bool
	w.OnBatch = func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x\n"), 0644))
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("batch did not start")
	}

	cancel()
	select {
	case <-done:
		assert.True(t, finished.Load())
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond, nil)
	require.NoError(t, err)

	var runs atomic.Int32
	w.OnBatch = func(context.Context) error {
		runs.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rawgate.lock"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestWatcher_ReportsErrors(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond, nil)
	require.NoError(t, err)

	errs := make(chan error, 1)
	w.OnBatch = func(context.Context) error { return errors.New("schema broken") }
	w.OnError = func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x\n"), 0644))
	select {
	case err := <-errs:
		assert.EqualError(t, err, "schema broken")
	case <-time.After(3 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestNewWatcher_RequiresDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), 0, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.csv")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = NewWatcher(file, 0, nil)
	assert.Error(t, err)
}
