package checkpoint

import (
	"context"
	"os"
)

// Backend stores checkpoints.
type Backend interface {
	// Save persists a checkpoint to the backend.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by ID.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, id string) error

	// List returns all checkpoints, newest first.
	List(ctx context.Context) ([]*Checkpoint, error)

	// Name returns the backend name for logging/debugging.
	Name() string
}

// MultiBackend wraps multiple backends for redundancy.
type MultiBackend struct {
	primary   Backend
	secondary Backend
}

// NewMultiBackend creates a backend that writes to both primary and secondary.
func NewMultiBackend(primary, secondary Backend) *MultiBackend {
	return &MultiBackend{
		primary:   primary,
		secondary: secondary,
	}
}

// Save writes to both backends (primary first). The secondary is best-effort.
func (m *MultiBackend) Save(ctx context.Context, cp *Checkpoint) error {
	if err := m.primary.Save(ctx, cp); err != nil {
		return err
	}
	_ = m.secondary.Save(ctx, cp)
	return nil
}

// Load reads from primary, falls back to secondary.
func (m *MultiBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	cp, err := m.primary.Load(ctx, id)
	if err == nil {
		return cp, nil
	}
	return m.secondary.Load(ctx, id)
}

// Delete removes from both backends.
func (m *MultiBackend) Delete(ctx context.Context, id string) error {
	err1 := m.primary.Delete(ctx, id)
	err2 := m.secondary.Delete(ctx, id)
	if err1 != nil {
		return err1
	}
	return err2
}

// List returns the primary's checkpoints.
func (m *MultiBackend) List(ctx context.Context) ([]*Checkpoint, error) {
	return m.primary.List(ctx)
}

// Name returns the combined backend names.
func (m *MultiBackend) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

// Discard is a Backend that keeps nothing.
var Discard Backend = discard{}

type discard struct{}

func (discard) Save(context.Context, *Checkpoint) error { return nil }
func (discard) Delete(context.Context, string) error    { return nil }
func (discard) Name() string                            { return "discard" }

func (discard) Load(context.Context, string) (*Checkpoint, error) {
	return nil, os.ErrNotExist
}

func (discard) List(context.Context) ([]*Checkpoint, error) {
	return nil, nil
}
