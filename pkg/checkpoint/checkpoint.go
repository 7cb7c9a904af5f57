// Package checkpoint records the history of pipeline runs. Each run saves
// a checkpoint as it moves through its phases, so an interrupted run is
// visible afterwards with the last phase it reached.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Phase is a step of a run.
type Phase string

const (
	PhaseStarting      Phase = "starting"
	PhaseStaged        Phase = "staged"
	PhaseValidated     Phase = "validated"
	PhaseSchemaEnsured Phase = "schema_ensured"
	PhasePopulated     Phase = "populated"
	PhaseArchived      Phase = "archived"
	PhaseExported      Phase = "exported"
	PhaseComplete      Phase = "complete"
	PhaseFailed        Phase = "failed"
)

// Terminal reports whether no further phase follows.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Checkpoint is the saved state of one run.
type Checkpoint struct {
	ID       string `json:"id"`
	Variant  string `json:"variant"`
	BatchDir string `json:"batch_dir"`

	Phase       Phase      `json:"phase"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	GoodFiles     []string `json:"good_files,omitempty"`
	BadFiles      []string `json:"bad_files,omitempty"`
	RowsLoaded    int64    `json:"rows_loaded"`
	ArchiveFolder string   `json:"archive_folder,omitempty"`
	ExportPath    string   `json:"export_path,omitempty"`
	Error         string   `json:"error,omitempty"`

	mu sync.Mutex
}

// New starts a checkpoint in PhaseStarting.
func New(id, variant, batchDir string) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		ID:        id,
		Variant:   variant,
		BatchDir:  batchDir,
		Phase:     PhaseStarting,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// SetPhase updates the phase.
func (c *Checkpoint) SetPhase(phase Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Phase = phase
	c.UpdatedAt = time.Now()
	if phase.Terminal() {
		now := c.UpdatedAt
		c.CompletedAt = &now
	}
}

// Fail moves the checkpoint to PhaseFailed with err.
func (c *Checkpoint) Fail(err error) {
	c.mu.Lock()
	if err != nil {
		c.Error = err.Error()
	}
	c.mu.Unlock()
	c.SetPhase(PhaseFailed)
}

// Duration returns how long the run took, or has taken so far.
func (c *Checkpoint) Duration() time.Duration {
	if c.CompletedAt != nil {
		return c.CompletedAt.Sub(c.StartedAt)
	}
	return time.Since(c.StartedAt)
}

func (c *Checkpoint) marshal() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.MarshalIndent(c, "", "  ")
}

func unmarshal(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// sortNewestFirst orders checkpoints by start time, newest first.
func sortNewestFirst(cps []*Checkpoint) {
	sort.Slice(cps, func(i, j int) bool { return cps[i].StartedAt.After(cps[j].StartedAt) })
}

const fileExt = ".checkpoint"

// FileBackend stores one JSON file per run in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+fileExt)
}

// Save persists the checkpoint to disk.
func (b *FileBackend) Save(_ context.Context, cp *Checkpoint) error {
	data, err := cp.marshal()
	if err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic)
	tempPath := b.path(cp.ID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, b.path(cp.ID))
}

// Load loads a checkpoint from disk.
func (b *FileBackend) Load(_ context.Context, id string) (*Checkpoint, error) {
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		return nil, err
	}
	return unmarshal(data)
}

// Delete removes a checkpoint.
func (b *FileBackend) Delete(_ context.Context, id string) error {
	return os.Remove(b.path(id))
}

// List returns every readable checkpoint, newest first.
func (b *FileBackend) List(_ context.Context) ([]*Checkpoint, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var cps []*Checkpoint
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			continue
		}
		cp, err := unmarshal(data)
		if err != nil {
			continue
		}
		cps = append(cps, cp)
	}
	sortNewestFirst(cps)
	return cps, nil
}

// Cleanup removes checkpoints not modified within maxAge.
func (b *FileBackend) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(b.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Name returns "file".
func (b *FileBackend) Name() string {
	return "file"
}
