package freezer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, numDBs int) *Store {
	t.Helper()

	s := New(Config{
		Dir:     t.TempDir(),
		MapSize: 1 << 30, // keep test environments small
		NumDBs:  numDBs,
	})
	t.Cleanup(s.CloseEnv)
	return s
}

func TestPutGetDel(t *testing.T) {
	s := newTestStore(t, 1)

	h, err := s.Open(0, true)
	if err != nil {
		t.Fatalf("Open(writer) failed: %v", err)
	}

	if err := h.Put([]byte("alpha"), []byte("one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	h.Close()

	h, err = s.Open(0, false)
	if err != nil {
		t.Fatalf("Open(reader) failed: %v", err)
	}

	value, err := h.Get([]byte("alpha"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(value, []byte("one")) {
		t.Errorf("Expected value %q, got %q", "one", value)
	}

	value, err = h.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get of missing key must not error, got: %v", err)
	}
	if value != nil {
		t.Errorf("Expected nil for missing key, got %q", value)
	}

	ok, err := h.Exists([]byte("alpha"))
	if err != nil || !ok {
		t.Errorf("Expected Exists=true for stored key (err=%v)", err)
	}
	ok, err = h.Exists([]byte("missing"))
	if err != nil || ok {
		t.Errorf("Expected Exists=false for missing key (err=%v)", err)
	}
	h.Close()

	h, err = s.Open(0, true)
	if err != nil {
		t.Fatalf("Open(writer) failed: %v", err)
	}

	deleted, err := h.Del([]byte("alpha"))
	if err != nil || !deleted {
		t.Errorf("Expected Del to delete the key (deleted=%v, err=%v)", deleted, err)
	}
	deleted, err = h.Del([]byte("alpha"))
	if err != nil || deleted {
		t.Errorf("Expected second Del to find nothing (deleted=%v, err=%v)", deleted, err)
	}
	h.Close()
}

func TestCloseOnNilHandle(t *testing.T) {
	var h *DBH
	h.Close() // must not panic

	h = &DBH{}
	h.Close()
	h.Close() // idempotent
}

func TestSubDatabasesAreIsolated(t *testing.T) {
	s := newTestStore(t, 4)

	for i := 0; i < 4; i++ {
		h, err := s.Open(i, true)
		if err != nil {
			t.Fatalf("Open(%d) failed: %v", i, err)
		}
		if err := h.Put([]byte("shared-key"), []byte(fmt.Sprintf("db-%d", i))); err != nil {
			t.Fatalf("Put in db %d failed: %v", i, err)
		}
		h.Close()
	}

	for i := 0; i < 4; i++ {
		h, err := s.Open(i, false)
		if err != nil {
			t.Fatalf("Open(%d) failed: %v", i, err)
		}
		value, err := h.Get([]byte("shared-key"))
		if err != nil {
			t.Fatalf("Get in db %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("db-%d", i); string(value) != want {
			t.Errorf("Expected %q in db %d, got %q", want, i, value)
		}
		h.Close()
	}
}

func TestOpenRejectsUnknownDatabase(t *testing.T) {
	s := newTestStore(t, 2)

	if _, err := s.Open(2, false); err == nil {
		t.Errorf("Expected Open of out-of-range logical database to fail")
	}
	if _, err := s.Open(-1, false); err == nil {
		t.Errorf("Expected Open of negative logical database to fail")
	}
}

func TestDrop(t *testing.T) {
	s := newTestStore(t, 1)

	h, err := s.Open(0, true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := h.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := h.Drop(); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	h.Close()

	h, err = s.Open(0, false)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	count := 0
	err = h.WalkKeys(func(key []byte) bool {
		count++
		return true
	}, 0, nil)
	if err != nil {
		t.Fatalf("WalkKeys failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty sub-database after Drop, found %d keys", count)
	}
	h.Close()
}

func TestWalkKeys(t *testing.T) {
	s := newTestStore(t, 1)

	h, err := s.Open(0, true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	const total = 250
	for i := 0; i < total; i++ {
		if err := h.Put([]byte(fmt.Sprintf("walk-key-%03d", i)), []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	h.Close()

	h, err = s.Open(0, false)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	seen := map[string]bool{}
	yields := 0
	err = h.WalkKeys(func(key []byte) bool {
		seen[string(key)] = true
		return true
	}, 100, func() {
		yields++
	})
	if err != nil {
		t.Fatalf("WalkKeys failed: %v", err)
	}

	if len(seen) != total {
		t.Errorf("Expected %d keys, visited %d", total, len(seen))
	}
	if yields != total/100 {
		t.Errorf("Expected %d yields, got %d", total/100, yields)
	}

	// early termination
	visited := 0
	err = h.WalkKeys(func(key []byte) bool {
		visited++
		return visited < 10
	}, 0, nil)
	if err != nil {
		t.Fatalf("WalkKeys failed: %v", err)
	}
	if visited != 10 {
		t.Errorf("Expected early termination after 10 keys, visited %d", visited)
	}
}

func TestCloseEnvReopensLazily(t *testing.T) {
	s := newTestStore(t, 1)

	h, err := s.Open(0, true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := h.Put([]byte("persistent"), []byte("value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	h.Close()

	s.CloseEnv()
	s.CloseEnv() // idempotent

	h, err = s.Open(0, false)
	if err != nil {
		t.Fatalf("Open after CloseEnv failed: %v", err)
	}
	defer h.Close()

	value, err := h.Get([]byte("persistent"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Errorf("Expected data to survive CloseEnv, got %q", value)
	}
}

func TestCopy(t *testing.T) {
	s := newTestStore(t, 2)

	for i := 0; i < 2; i++ {
		h, err := s.Open(i, true)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if err := h.Put([]byte("copy-key"), []byte(fmt.Sprintf("copy-value-%d", i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		h.Close()
	}

	dst := filepath.Join(t.TempDir(), "snapshot")
	if err := os.MkdirAll(dst, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	if err := s.Copy(dst); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	// the copy must be a self-contained environment
	clone := New(Config{Dir: dst, MapSize: 1 << 30, NumDBs: 2})
	defer clone.CloseEnv()

	for i := 0; i < 2; i++ {
		h, err := clone.Open(i, false)
		if err != nil {
			t.Fatalf("Open on copied environment failed: %v", err)
		}
		value, err := h.Get([]byte("copy-key"))
		if err != nil {
			t.Fatalf("Get on copied environment failed: %v", err)
		}
		if want := fmt.Sprintf("copy-value-%d", i); string(value) != want {
			t.Errorf("Expected %q in copied db %d, got %q", want, i, value)
		}
		h.Close()
	}
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindTxnFull, "put", fmt.Errorf("boom"))

	if !IsKind(err, KindTxnFull) {
		t.Errorf("Expected IsKind(KindTxnFull) to be true")
	}
	if IsKind(err, KindIO) {
		t.Errorf("Expected IsKind(KindIO) to be false")
	}
	if IsKind(fmt.Errorf("plain"), KindIO) {
		t.Errorf("Expected IsKind on a plain error to be false")
	}

	for _, k := range []Kind{KindEnvInit, KindTxnBegin, KindDbiOpen, KindTxnFull, KindIO, KindCopy} {
		if k.String() == "Unknown" {
			t.Errorf("Kind %d has no string representation", k)
		}
	}
}
