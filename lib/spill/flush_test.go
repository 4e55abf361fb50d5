package spill

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cbergmann/permafrost/lib/freezer"
	"github.com/cbergmann/permafrost/lib/payload"
)

// sabotageFreezer points the store's freezer at a path that can never
// be an environment directory, so the next background operation fails
// the way a dying child would.
func sabotageFreezer(t *testing.T, s *Store) {
	t.Helper()

	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s.mu.Lock()
	s.frz.CloseEnv()
	s.frz = freezer.New(freezer.Config{Dir: filepath.Join(blocker, "freezer"), NumDBs: len(s.ldbs)})
	s.mu.Unlock()
}

func decodeFreezerValue(t *testing.T, raw []byte) []byte {
	t.Helper()

	value, err := payload.Decode(raw)
	if err != nil {
		t.Fatalf("freezer holds an invalid payload: %v", err)
	}
	return value
}

// --------------------------------------------------------------------------
// Flush
// --------------------------------------------------------------------------

func TestFlushPersistsAndClearsDirty(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))
	s.Set(0, "b", []byte("2"))

	r := &testReplier{}
	s.Flush(r)
	waitForBackground(t, s)

	if r.oks != 1 || len(r.errs) != 0 {
		t.Fatalf("Expected deferred OK, got oks=%d errs=%v", r.oks, r.errs)
	}

	st := s.Stats()
	if st.DirtyKeys != 0 || st.FlushingKeys != 0 {
		t.Errorf("Expected empty dirty and flushing sets, got %d / %d", st.DirtyKeys, st.FlushingKeys)
	}
	if st.FlushSuccess != 1 {
		t.Errorf("Expected 1 flush success, got %d", st.FlushSuccess)
	}
	if st.LastSaveUnix == 0 {
		t.Errorf("Expected last-save timestamp to be recorded")
	}

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		raw := freezerGet(t, s, 0, key)
		if raw == nil {
			t.Fatalf("Expected freezer to contain %q after flush", key)
		}
		if got := decodeFreezerValue(t, raw); !bytes.Equal(got, []byte(want)) {
			t.Errorf("Expected freezer value %q for %q, got %q", want, key, got)
		}
	}
}

func TestFlushDeletesTombstonedKeys(t *testing.T) {
	s := newTestStore(t, 1)

	// The freezer knows the key; deleting it dirties it as a tombstone.
	freezerPut(t, s, 0, "gone", payload.Encode([]byte("old")))
	if _, err := s.Delete(0, "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	s.Flush(&testReplier{})
	waitForBackground(t, s)

	if raw := freezerGet(t, s, 0, "gone"); raw != nil {
		t.Errorf("Expected flush to delete the tombstoned key from the freezer")
	}
}

func TestFlushMatchesLiveState(t *testing.T) {
	s := newTestStore(t, 2)

	for i := 0; i < 50; i++ {
		s.Set(i%2, fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	s.Flush(&testReplier{})
	waitForBackground(t, s)

	// For every key not subsequently mutated, the freezer copy equals
	// the live copy.
	for i := 0; i < 50; i++ {
		dbid := i % 2
		key := fmt.Sprintf("key-%d", i)

		live, found, err := s.Get(dbid, key)
		if err != nil || !found {
			t.Fatalf("Get(%s) failed (found=%v): %v", key, found, err)
		}

		raw := freezerGet(t, s, dbid, key)
		if raw == nil {
			t.Fatalf("Expected freezer to contain %q", key)
		}
		if frozen := decodeFreezerValue(t, raw); !bytes.Equal(frozen, live) {
			t.Errorf("Freezer and live disagree for %q: %q vs %q", key, frozen, live)
		}
	}
}

func TestWritesDuringFlushLandInNewDirtySet(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))

	// Rotation happens synchronously inside Flush, so a Set issued
	// right after it targets the fresh dirty set.
	r := &testReplier{}
	s.Flush(r)
	s.Set(0, "b", []byte("2"))

	s.mu.Lock()
	dirty := s.ldbs[0].tracker.DirtyCount()
	s.mu.Unlock()
	if dirty != 1 {
		t.Errorf("Expected 1 dirty key mid-flush, got %d", dirty)
	}

	waitForBackground(t, s)

	if raw := freezerGet(t, s, 0, "a"); raw == nil {
		t.Errorf("Expected freezer to contain the flushed key")
	}
	if raw := freezerGet(t, s, 0, "b"); raw != nil {
		t.Errorf("Key written mid-flush must not be in the freezer yet")
	}

	st := s.Stats()
	if st.DirtyKeys != 1 || st.FlushingKeys != 0 {
		t.Errorf("Expected dirty={b}, flushing={}, got %d / %d", st.DirtyKeys, st.FlushingKeys)
	}

	// The next flush drains the straggler.
	s.Flush(&testReplier{})
	waitForBackground(t, s)

	raw := freezerGet(t, s, 0, "b")
	if raw == nil {
		t.Fatalf("Expected second flush to drain the new dirty set")
	}
	if got := decodeFreezerValue(t, raw); !bytes.Equal(got, []byte("2")) {
		t.Errorf("Expected %q, got %q", "2", got)
	}
}

func TestFlushFailureRestoresDirty(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))

	sabotageFreezer(t, s)

	r := &testReplier{}
	s.Flush(r)
	s.Set(0, "b", []byte("2"))
	waitForBackground(t, s)

	if r.oks != 0 || len(r.errs) != 1 {
		t.Fatalf("Expected one deferred error, got oks=%d errs=%v", r.oks, r.errs)
	}
	if want := "NDS FLUSH failed in child; consult logs for details"; r.errs[0] != want {
		t.Errorf("Expected error %q, got %q", want, r.errs[0])
	}

	st := s.Stats()
	if st.FlushFailure != 1 {
		t.Errorf("Expected 1 flush failure, got %d", st.FlushFailure)
	}
	if st.DirtyKeys != 2 || st.FlushingKeys != 0 {
		t.Errorf("Expected dirty={a,b}, flushing={}, got %d / %d", st.DirtyKeys, st.FlushingKeys)
	}

	// Both keys remain shadowed and memory-authoritative.
	for _, key := range []string{"a", "b"} {
		if !s.ldbs[0].tracker.IsShadowed(key) {
			t.Errorf("Expected %q to be back in the dirty set", key)
		}
	}
}

func TestSecondRequesterIsRejected(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))

	first := &testReplier{}
	s.Flush(first)

	second := &testReplier{}
	s.Flush(second)

	if len(second.errs) != 1 || second.errs[0] != "NDS background operation already in progress" {
		t.Errorf("Expected busy rejection for the second requester, got %v", second.errs)
	}

	waitForBackground(t, s)

	if first.oks != 1 {
		t.Errorf("Expected the first requester to still get its reply, got oks=%d errs=%v", first.oks, first.errs)
	}
}

func TestFlushRefusedDuringPreload(t *testing.T) {
	s := newTestStore(t, 1)

	// Simulate the mid-walk state: preload holds its guard flag while
	// yielding the mutex.
	s.mu.Lock()
	s.preloadInProgress = true
	s.mu.Unlock()

	if err := s.BackgroundDirtyFlush(); err == nil {
		t.Errorf("Expected flush to be refused while preload is walking the freezer")
	}

	s.mu.Lock()
	s.preloadInProgress = false
	s.mu.Unlock()
}

// --------------------------------------------------------------------------
// Snapshot
// --------------------------------------------------------------------------

func TestSnapshot(t *testing.T) {
	s := newTestStore(t, 2)

	s.Set(0, "a", []byte("1"))
	s.Set(1, "b", []byte("2"))

	r := &testReplier{}
	s.Snapshot(r)
	waitForBackground(t, s)

	if r.oks != 1 || len(r.errs) != 0 {
		t.Fatalf("Expected deferred OK, got oks=%d errs=%v", r.oks, r.errs)
	}

	// The snapshot directory holds a coherent copy of the drained state.
	clone := NewStore(Config{
		NumDBs:  2,
		Dir:     s.cfg.SnapshotDir,
		MapSize: 1 << 30,
	})
	defer clone.Close()

	value, found, err := clone.Get(0, "a")
	if err != nil || !found || !bytes.Equal(value, []byte("1")) {
		t.Errorf("Expected %q in snapshot db 0, got %q (found=%v, err=%v)", "1", value, found, err)
	}
	value, found, err = clone.Get(1, "b")
	if err != nil || !found || !bytes.Equal(value, []byte("2")) {
		t.Errorf("Expected %q in snapshot db 1, got %q (found=%v, err=%v)", "2", value, found, err)
	}
}

func TestSnapshotReplacesPreviousSnapshot(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "k", []byte("first"))
	s.Snapshot(&testReplier{})
	waitForBackground(t, s)

	s.Set(0, "k", []byte("second"))
	s.Snapshot(&testReplier{})
	waitForBackground(t, s)

	clone := NewStore(Config{NumDBs: 1, Dir: s.cfg.SnapshotDir, MapSize: 1 << 30})
	defer clone.Close()

	value, found, err := clone.Get(0, "k")
	if err != nil || !found || !bytes.Equal(value, []byte("second")) {
		t.Errorf("Expected the fresh snapshot to win, got %q (found=%v, err=%v)", value, found, err)
	}
}

func TestDeferredSnapshot(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))

	// Start a plain flush without a requester, then ask for a snapshot
	// while it is (still) the running background operation.
	if err := s.BackgroundDirtyFlush(); err != nil {
		t.Fatalf("BackgroundDirtyFlush failed: %v", err)
	}

	r := &testReplier{}
	s.Snapshot(r)

	s.mu.Lock()
	pending := s.snapshotPending
	s.mu.Unlock()
	if !pending {
		t.Fatalf("Expected the snapshot to be deferred behind the running flush")
	}

	waitForBackground(t, s)

	if r.oks != 1 || len(r.errs) != 0 {
		t.Fatalf("Expected the deferred snapshot to answer its requester, got oks=%d errs=%v", r.oks, r.errs)
	}

	clone := NewStore(Config{NumDBs: 1, Dir: s.cfg.SnapshotDir, MapSize: 1 << 30})
	defer clone.Close()

	value, found, err := clone.Get(0, "a")
	if err != nil || !found || !bytes.Equal(value, []byte("1")) {
		t.Errorf("Expected deferred snapshot to contain the flushed key, got %q (found=%v, err=%v)", value, found, err)
	}
}

func TestSnapshotWhilePendingIsRejected(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))

	if err := s.BackgroundDirtyFlush(); err != nil {
		t.Fatalf("BackgroundDirtyFlush failed: %v", err)
	}

	first := &testReplier{}
	s.Snapshot(first)

	second := &testReplier{}
	s.Snapshot(second)
	if len(second.errs) != 1 || second.errs[0] != "NDS SNAPSHOT already in progress" {
		t.Errorf("Expected pending-snapshot rejection, got %v", second.errs)
	}

	waitForBackground(t, s)
}

func TestSnapshotFailureReportsSnapshotError(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))

	sabotageFreezer(t, s)

	r := &testReplier{}
	s.Snapshot(r)
	waitForBackground(t, s)

	if len(r.errs) != 1 {
		t.Fatalf("Expected one deferred error, got oks=%d errs=%v", r.oks, r.errs)
	}
	if want := "NDS SNAPSHOT failed in child; consult logs for details"; r.errs[0] != want {
		t.Errorf("Expected error %q, got %q", want, r.errs[0])
	}
}

// --------------------------------------------------------------------------
// NDS Dispatcher
// --------------------------------------------------------------------------

func TestDispatchSubcommands(t *testing.T) {
	s := newTestStore(t, 1)

	s.Set(0, "a", []byte("1"))

	// case-insensitive FLUSH with deferred reply
	r := &testReplier{}
	s.Dispatch([]string{"flush"}, r)
	waitForBackground(t, s)
	if r.oks != 1 {
		t.Errorf("Expected deferred OK for flush, got oks=%d errs=%v", r.oks, r.errs)
	}

	// immediate replies
	r = &testReplier{}
	s.Dispatch([]string{"ClearStats"}, r)
	if r.oks != 1 || len(r.errs) != 0 {
		t.Errorf("Expected immediate OK for clearstats, got oks=%d errs=%v", r.oks, r.errs)
	}

	r = &testReplier{}
	s.Dispatch([]string{"PRELOAD"}, r)
	if r.oks != 1 || len(r.errs) != 0 {
		t.Errorf("Expected immediate OK for preload, got oks=%d errs=%v", r.oks, r.errs)
	}

	// snapshot with deferred reply
	r = &testReplier{}
	s.Dispatch([]string{"SNAPSHOT"}, r)
	waitForBackground(t, s)
	if r.oks != 1 {
		t.Errorf("Expected deferred OK for snapshot, got oks=%d errs=%v", r.oks, r.errs)
	}
}

func TestDispatchBadArity(t *testing.T) {
	s := newTestStore(t, 1)

	for _, sub := range []string{"SNAPSHOT", "flush", "CLEARSTATS", "preload"} {
		r := &testReplier{}
		s.Dispatch([]string{sub, "extra"}, r)

		want := fmt.Sprintf("Wrong number of arguments for NDS %s", sub)
		if len(r.errs) != 1 || r.errs[0] != want {
			t.Errorf("Expected %q, got %v", want, r.errs)
		}
	}
}

func TestDispatchUnknownSubcommand(t *testing.T) {
	s := newTestStore(t, 1)

	want := "NDS subcommand must be one of: SNAPSHOT FLUSH CLEARSTATS PRELOAD"

	r := &testReplier{}
	s.Dispatch([]string{"DEFROST"}, r)
	if len(r.errs) != 1 || r.errs[0] != want {
		t.Errorf("Expected enumeration error, got %v", r.errs)
	}

	r = &testReplier{}
	s.Dispatch(nil, r)
	if len(r.errs) != 1 || r.errs[0] != want {
		t.Errorf("Expected enumeration error for empty args, got %v", r.errs)
	}
}
