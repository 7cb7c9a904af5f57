// Package quarantine manages the per-run Good and Bad staging directories
// and the dated archive of rejected files.
package quarantine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/logflow/rawgate/pkg/audit"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/naming"
)

const (
	GoodDirName = "Good_Raw"
	BadDirName  = "Bad_Raw"

	// ArchivePrefix starts every archive folder name.
	ArchivePrefix = "BadData_"
	archiveLayout = "2006-01-02_150405"
)

// Mirror receives a copy of every archived file.
type Mirror interface {
	Key(parts ...string) string
	Upload(ctx context.Context, key, localPath string) error
}

// Store owns the staging directories under one root and the archive root.
type Store struct {
	root        string
	archiveRoot string
	sink        audit.Sink
	stream      string
	mirror      Mirror
}

// Option configures a Store.
type Option func(*Store)

// WithAudit records staging decisions to stream on sink.
func WithAudit(sink audit.Sink, stream string) Option {
	return func(s *Store) {
		s.sink = sink
		s.stream = stream
	}
}

// WithMirror uploads archived files to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) {
		s.mirror = m
	}
}

// New creates a Store with staging under root and archives under archiveRoot.
func New(root, archiveRoot string, opts ...Option) *Store {
	s := &Store{
		root:        root,
		archiveRoot: archiveRoot,
		sink:        audit.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GoodDir returns the Good staging directory.
func (s *Store) GoodDir() string { return filepath.Join(s.root, GoodDirName) }

// BadDir returns the Bad staging directory.
func (s *Store) BadDir() string { return filepath.Join(s.root, BadDirName) }

// ArchiveRoot returns the directory holding archive folders.
func (s *Store) ArchiveRoot() string { return s.archiveRoot }

// Reset removes both staging directories and recreates them empty.
func (s *Store) Reset() error {
	for _, dir := range []string{s.GoodDir(), s.BadDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return gerrors.Wrap(err, gerrors.CodeStaging, "remove staging").WithContext("dir", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return gerrors.Wrap(err, gerrors.CodeStaging, "create staging").WithContext("dir", dir)
		}
	}
	s.record("Good and Bad staging directories created")
	return nil
}

// Admit copies the batch file at src into Good or Bad staging according to
// the verdict. The source is left untouched.
func (s *Store) Admit(src string, v naming.Verdict) (string, error) {
	dir := s.BadDir()
	if v == naming.Valid {
		dir = s.GoodDir()
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", gerrors.Wrap(err, gerrors.CodeStaging, "stage file").WithContext("file", filepath.Base(src))
	}
	return dst, nil
}

// MoveToBad relocates a Good staging file into Bad staging.
func (s *Store) MoveToBad(name string) error {
	src := filepath.Join(s.GoodDir(), name)
	if err := os.MkdirAll(s.BadDir(), 0755); err != nil {
		return gerrors.Wrap(err, gerrors.CodeStaging, "create bad staging")
	}
	if err := moveFile(src, filepath.Join(s.BadDir(), name)); err != nil {
		return gerrors.Wrap(err, gerrors.CodeStaging, "relocate file").WithContext("file", name)
	}
	return nil
}

// GoodFiles returns the names of regular files in Good staging, sorted.
func (s *Store) GoodFiles() ([]string, error) {
	return listFiles(s.GoodDir())
}

// BadFiles returns the names of regular files in Bad staging, sorted.
func (s *Store) BadFiles() ([]string, error) {
	return listFiles(s.BadDir())
}

// Archive is the result of ArchiveBad.
type Archive struct {
	Folder  string
	Moved   []string
	Skipped []string
}

// ArchiveBad moves every Bad staging file into the archive folder for now
// and removes Bad staging. The folder is created only if absent and files
// already present there are left in place. Without Bad staging it returns a
// zero Archive.
func (s *Store) ArchiveBad(ctx context.Context, now time.Time) (Archive, error) {
	var res Archive

	if _, err := os.Stat(s.BadDir()); os.IsNotExist(err) {
		return res, nil
	}

	names, err := s.BadFiles()
	if err != nil {
		return res, gerrors.Wrap(err, gerrors.CodeArchive, "list bad staging")
	}

	folderName := FolderName(now)
	res.Folder = filepath.Join(s.archiveRoot, folderName)
	if err := os.MkdirAll(res.Folder, 0755); err != nil {
		return res, gerrors.Wrap(err, gerrors.CodeArchive, "create archive folder").WithContext("folder", res.Folder)
	}

	for _, name := range names {
		dst := filepath.Join(res.Folder, name)
		if _, err := os.Stat(dst); err == nil {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := moveFile(filepath.Join(s.BadDir(), name), dst); err != nil {
			return res, gerrors.Wrap(err, gerrors.CodeArchive, "archive file").WithContext("file", name)
		}
		res.Moved = append(res.Moved, name)

		if s.mirror != nil {
			key := s.mirror.Key(folderName, name)
			if err := s.mirror.Upload(ctx, key, dst); err != nil {
				s.record(fmt.Sprintf("Error while mirroring %s to %s: %v", name, key, err))
			}
		}
	}

	if err := os.RemoveAll(s.BadDir()); err != nil {
		return res, gerrors.Wrap(err, gerrors.CodeArchive, "remove bad staging")
	}
	s.record("Bad files moved to archive " + res.Folder)
	s.record("Bad Raw Data Folder Deleted successfully!!")
	return res, nil
}

// PurgeGood removes Good staging.
func (s *Store) PurgeGood() error {
	if err := os.RemoveAll(s.GoodDir()); err != nil {
		return gerrors.Wrap(err, gerrors.CodeStaging, "remove good staging")
	}
	s.record("GoodRaw directory deleted successfully!!!")
	return nil
}

// FolderName returns the archive folder name for t.
func FolderName(t time.Time) string {
	return ArchivePrefix + t.Format(archiveLayout)
}

// FolderInfo describes one archive folder.
type FolderInfo struct {
	Name    string
	Path    string
	Created time.Time
	Files   int
}

// ListArchives returns the archive folders under root, newest first.
// Entries whose name does not parse as an archive folder are ignored.
func ListArchives(root string) ([]FolderInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []FolderInfo
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), ArchivePrefix) {
			continue
		}
		created, err := time.ParseInLocation(archiveLayout, strings.TrimPrefix(e.Name(), ArchivePrefix), time.Local)
		if err != nil {
			continue
		}
		path := filepath.Join(root, e.Name())
		files, err := listFiles(path)
		if err != nil {
			return nil, err
		}
		out = append(out, FolderInfo{Name: e.Name(), Path: path, Created: created, Files: len(files)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

func (s *Store) record(msg string) {
	if s.stream != "" {
		s.sink.Record(s.stream, msg)
	}
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// moveFile renames src to dst, falling back to copy and remove when the two
// are on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if _, statErr := os.Stat(src); statErr != nil {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
