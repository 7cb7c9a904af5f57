// Package runlock serializes pipeline runs that share a storage location.
//
// A run acquires its Locker before resetting staging and releases it after
// the export. A second run against the same location fails fast with
// CodeRunLocked instead of racing on the staging directories.
package runlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

// Locker guards one storage location.
type Locker interface {
	// Acquire takes the lock or fails with CodeRunLocked.
	Acquire(ctx context.Context, owner string) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// LockFileName is created under the staging root while a run holds it.
const LockFileName = ".rawgate.lock"

// File locks by exclusively creating a lock file.
type File struct {
	Path string
	// StaleAfter lets a lock file older than this be taken over, which
	// recovers from a crashed run. Zero never takes over.
	StaleAfter time.Duration
}

// NewFile returns a File lock under dir.
func NewFile(dir string, staleAfter time.Duration) *File {
	return &File{Path: filepath.Join(dir, LockFileName), StaleAfter: staleAfter}
}

// Acquire creates the lock file holding owner and the current time.
func (l *File) Acquire(_ context.Context, owner string) (Lease, error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%s\n%d\n", owner, time.Now().Unix())
			if err := f.Close(); err != nil {
				os.Remove(l.Path)
				return nil, err
			}
			return &fileLease{path: l.Path, owner: owner}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		holder, since := readLockFile(l.Path)
		if l.StaleAfter > 0 && !since.IsZero() && time.Since(since) > l.StaleAfter {
			os.Remove(l.Path)
			continue
		}
		return nil, gerrors.New(gerrors.CodeRunLocked, "another run holds the lock").
			WithContext("path", l.Path).
			WithContext("holder", holder)
	}
	return nil, gerrors.New(gerrors.CodeRunLocked, "lock contended").WithContext("path", l.Path)
}

func readLockFile(path string) (string, time.Time) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return lines[0], time.Time{}
	}
	sec, err := strconv.ParseInt(lines[1], 10, 64)
	if err != nil {
		return lines[0], time.Time{}
	}
	return lines[0], time.Unix(sec, 0)
}

type fileLease struct {
	path  string
	owner string
}

// Release removes the lock file if it still names this owner.
func (l *fileLease) Release(context.Context) error {
	holder, _ := readLockFile(l.path)
	if holder != l.owner {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Nop never blocks.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (Lease, error) { return nopLease{}, nil }

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }
