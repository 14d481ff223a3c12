// Package snapshotstore provides appcore.SnapshotStore adapters.
package snapshotstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/snapshot"
)

// InMemorySnapshotStore keeps every snapshot of every stream in memory.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]snapshot.Snapshot
	deleted   map[string]bool
}

// NewInMemorySnapshotStore creates an empty store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{
		snapshots: make(map[string][]snapshot.Snapshot),
		deleted:   make(map[string]bool),
	}
}

// SetSnapshot appends snap when its version is ahead of the latest one.
func (s *InMemorySnapshotStore) SetSnapshot(_ context.Context, snap snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted[snap.StreamName] {
		return fmt.Errorf("%w: %s", errs.ErrSnapshotDeleted, snap.StreamName)
	}

	history := s.snapshots[snap.StreamName]
	if n := len(history); n > 0 && history[n-1].SnapshotVersion >= snap.SnapshotVersion {
		return errs.NewSnapshotConflictError(snap.StreamName, history[n-1].SnapshotVersion, snap.SnapshotVersion)
	}

	snap.State = append([]byte(nil), snap.State...)
	s.snapshots[snap.StreamName] = append(history, snap)
	return nil
}

// LoadSnapshot returns the latest snapshot of stream.
func (s *InMemorySnapshotStore) LoadSnapshot(_ context.Context, stream string) (snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.deleted[stream] {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %s", errs.ErrSnapshotDeleted, stream)
	}
	history := s.snapshots[stream]
	if len(history) == 0 {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %s", errs.ErrSnapshotNotFound, stream)
	}

	latest := history[len(history)-1]
	latest.State = append([]byte(nil), latest.State...)
	return latest, nil
}

// Delete marks the snapshot stream deleted.
func (s *InMemorySnapshotStore) Delete(_ context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted[stream] = true
	return nil
}

// Count returns how many snapshots stream has (for tests).
func (s *InMemorySnapshotStore) Count(stream string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.snapshots[stream])
}
