package cache

import "sync/atomic"

// Store publishes and serves snapshots. Publish and Current never block each
// other: the only shared state is a single atomic pointer. Readers holding a
// superseded snapshot keep a valid, fully consistent view until they drop it.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store primed with an empty snapshot so Current is
// always safe to use before the first refresh completes.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot())
	return s
}

// Publish atomically installs snap as the current snapshot.
func (s *Store) Publish(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
}

// Current returns the latest published snapshot. Never nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
