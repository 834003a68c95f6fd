// Package store persists the last good registry snapshot.
package store

import (
	"context"
	"sync"

	"mfetl/internal/registry"
	"mfetl/pkg/platform/sentinel"
)

// Memory keeps the snapshot in process. It survives refresh failures but
// not restarts.
type Memory struct {
	mu   sync.RWMutex
	snap *registry.Snapshot
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

// Save implements registry.SnapshotStore. A nil snapshot is ignored.
func (m *Memory) Save(_ context.Context, snap *registry.Snapshot) error {
	if snap == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	return nil
}

// Load implements registry.SnapshotStore.
func (m *Memory) Load(_ context.Context) (*registry.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil, sentinel.ErrNotFound
	}
	return m.snap, nil
}
