package tracker

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Tracker
// --------------------------------------------------------------------------

// Tracker records which keys of one logical database have diverged from
// the freezer tier. It holds two sets:
//
//   - dirty: keys mutated since the last flush started
//   - flushing: keys captured by the currently running flush
//
// A key present in either set is "shadowed": its in-memory state is
// authoritative and the freezer copy must not be served. Outside the
// rotation instant the two sets are disjoint.
//
// Keys are stored as owned strings, so entries outlive whatever the
// live table does with its own copy of the key.
type Tracker struct {
	mu       sync.RWMutex
	dirty    *xsync.MapOf[string, struct{}]
	flushing *xsync.MapOf[string, struct{}]
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		dirty:    xsync.NewMapOf[string, struct{}](),
		flushing: xsync.NewMapOf[string, struct{}](),
	}
}

// --------------------------------------------------------------------------
// Foreground Operations
// --------------------------------------------------------------------------

// Touch records key as dirty. Idempotent. A key touched while it is in
// the flushing set moves to the dirty set, keeping the two disjoint.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tracker) Touch(key string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.dirty.Store(key, struct{}{})
	t.flushing.Delete(key)
}

// IsShadowed reports whether key is in the dirty or the flushing set.
// This is the predicate that gates every freezer read.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tracker) IsShadowed(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.dirty.Load(key); ok {
		return true
	}
	_, ok := t.flushing.Load(key)
	return ok
}

// DirtyCount returns the number of dirty keys.
func (t *Tracker) DirtyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty.Size()
}

// FlushingCount returns the number of keys captured by the running flush.
func (t *Tracker) FlushingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.flushing.Size()
}

// --------------------------------------------------------------------------
// Flush Coordination
// --------------------------------------------------------------------------

// Rotate atomically swaps the dirty and flushing sets: the previous
// dirty set becomes the flushing set and an empty set takes its place.
//
// Precondition: the flushing set is empty. The flush coordinator
// enforces this before starting a flush.
func (t *Tracker) Rotate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty, t.flushing = t.flushing, t.dirty
}

// FlushingKeys returns a snapshot of the flushing set.
func (t *Tracker) FlushingKeys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, t.flushing.Size())
	t.flushing.Range(func(key string, _ struct{}) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// ClearFlushing empties the flushing set. Called when a flush succeeds.
func (t *Tracker) ClearFlushing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushing.Clear()
}

// MergeFlushingBack moves every flushing key back into the dirty set
// and clears the flushing set. Called when a flush fails: we cannot
// know how far the worker got, so every captured key is treated as
// still dirty and retried on the next flush. One redundant write is
// cheaper than a lost one.
func (t *Tracker) MergeFlushingBack() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushing.Range(func(key string, _ struct{}) bool {
		t.dirty.Store(key, struct{}{})
		return true
	})
	t.flushing.Clear()
}
