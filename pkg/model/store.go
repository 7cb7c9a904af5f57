package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gerrors "github.com/logflow/rawgate/pkg/errors"
)

// ModelID joins a model name and its cluster, e.g. "RandomForest2".
func ModelID(name string, cluster int) string {
	return name + strconv.Itoa(cluster)
}

// Store keeps models as <dir>/<id>/<id>.json.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id, id+".json")
}

// Save writes m, replacing a stored model with the same id.
func (s *Store) Save(m *Model) error {
	id := m.ID()
	dir := filepath.Join(s.dir, id)
	if err := os.RemoveAll(dir); err != nil {
		return gerrors.Wrap(err, gerrors.CodeModel, "remove previous model").WithContext("model", id)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return gerrors.Wrap(err, gerrors.CodeModel, "create model directory").WithContext("model", id)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return gerrors.Wrap(err, gerrors.CodeModel, "encode model").WithContext("model", id)
	}
	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return gerrors.Wrap(err, gerrors.CodeModel, "write model").WithContext("model", id)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		os.Remove(tmp)
		return gerrors.Wrap(err, gerrors.CodeModel, "write model").WithContext("model", id)
	}
	return nil
}

// Load reads the model stored under id.
func (s *Store) Load(id string) (*Model, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.Newf(gerrors.CodeModel, "model %s not found", id).WithContext("dir", s.dir)
		}
		return nil, gerrors.Wrap(err, gerrors.CodeModel, "read model").WithContext("model", id)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeModel, "decode model").WithContext("model", id)
	}
	return &m, nil
}

// List returns the ids of stored models, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, gerrors.Wrap(err, gerrors.CodeModel, "list models")
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.path(e.Name())); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// FindForCluster loads the model whose id ends in the cluster number. With
// several candidates the first id in sort order wins.
func (s *Store) FindForCluster(cluster int) (*Model, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if c, ok := clusterOf(id); ok && c == cluster {
			return s.Load(id)
		}
	}
	return nil, gerrors.Newf(gerrors.CodeModel, "no model for cluster %d", cluster).WithContext("dir", s.dir)
}

// clusterOf parses the trailing digits of an id.
func clusterOf(id string) (int, bool) {
	stem := strings.TrimRightFunc(id, func(r rune) bool { return r >= '0' && r <= '9' })
	if stem == id || stem == "" {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(stem):])
	return n, err == nil
}
