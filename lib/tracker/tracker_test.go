package tracker

import (
	"fmt"
	"sort"
	"testing"
)

func TestTouchIsIdempotent(t *testing.T) {
	tr := New()

	tr.Touch("a")
	tr.Touch("a")
	tr.Touch("a")

	if got := tr.DirtyCount(); got != 1 {
		t.Errorf("Expected dirty count 1 after repeated Touch, got %d", got)
	}
}

func TestIsShadowed(t *testing.T) {
	tr := New()

	if tr.IsShadowed("a") {
		t.Errorf("Expected untouched key to not be shadowed")
	}

	tr.Touch("a")
	if !tr.IsShadowed("a") {
		t.Errorf("Expected dirty key to be shadowed")
	}

	tr.Rotate()
	if !tr.IsShadowed("a") {
		t.Errorf("Expected flushing key to be shadowed")
	}

	tr.ClearFlushing()
	if tr.IsShadowed("a") {
		t.Errorf("Expected key to be unshadowed after ClearFlushing")
	}
}

func TestRotate(t *testing.T) {
	tr := New()

	tr.Touch("a")
	tr.Touch("b")

	tr.Rotate()

	if got := tr.DirtyCount(); got != 0 {
		t.Errorf("Expected empty dirty set after Rotate, got %d keys", got)
	}
	if got := tr.FlushingCount(); got != 2 {
		t.Errorf("Expected 2 flushing keys after Rotate, got %d", got)
	}

	// new mutations land in the fresh dirty set
	tr.Touch("c")
	if got := tr.DirtyCount(); got != 1 {
		t.Errorf("Expected 1 dirty key after post-rotation Touch, got %d", got)
	}
	if got := tr.FlushingCount(); got != 2 {
		t.Errorf("Expected flushing set to be unaffected by Touch, got %d", got)
	}
}

func TestFlushingKeys(t *testing.T) {
	tr := New()

	for i := 0; i < 5; i++ {
		tr.Touch(fmt.Sprintf("key-%d", i))
	}
	tr.Rotate()

	keys := tr.FlushingKeys()
	sort.Strings(keys)

	if len(keys) != 5 {
		t.Fatalf("Expected 5 flushing keys, got %d", len(keys))
	}
	for i, key := range keys {
		if want := fmt.Sprintf("key-%d", i); key != want {
			t.Errorf("Expected key %q, got %q", want, key)
		}
	}
}

func TestClearFlushing(t *testing.T) {
	tr := New()

	tr.Touch("a")
	tr.Rotate()
	tr.ClearFlushing()

	if got := tr.FlushingCount(); got != 0 {
		t.Errorf("Expected empty flushing set after ClearFlushing, got %d", got)
	}
	if got := tr.DirtyCount(); got != 0 {
		t.Errorf("Expected ClearFlushing to not touch the dirty set, got %d", got)
	}
}

func TestMergeFlushingBack(t *testing.T) {
	tr := New()

	tr.Touch("a")
	tr.Touch("b")
	tr.Rotate()

	// a concurrent mutation dirties one of the captured keys again
	tr.Touch("b")
	tr.Touch("c")

	tr.MergeFlushingBack()

	if got := tr.FlushingCount(); got != 0 {
		t.Errorf("Expected empty flushing set after merge-back, got %d", got)
	}
	if got := tr.DirtyCount(); got != 3 {
		t.Errorf("Expected 3 dirty keys after merge-back, got %d", got)
	}
	for _, key := range []string{"a", "b", "c"} {
		if !tr.IsShadowed(key) {
			t.Errorf("Expected %q to be shadowed after merge-back", key)
		}
	}
}

func TestDisjointSets(t *testing.T) {
	tr := New()

	tr.Touch("a")
	tr.Rotate()
	tr.Touch("a") // re-dirtied while flushing

	// re-dirtying moved "a" out of the flushing set; a successful flush
	// must leave the dirty copy in place
	tr.ClearFlushing()

	if !tr.IsShadowed("a") {
		t.Errorf("Expected re-dirtied key to stay shadowed after flush completion")
	}
	if got := tr.DirtyCount(); got != 1 {
		t.Errorf("Expected 1 dirty key, got %d", got)
	}
}
