package testing

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/cbergmann/permafrost/lib/db"
)

// TableFactory is a function that creates a new instance of a db.Table implementation
type TableFactory func() db.Table

// RunTableTests runs a comprehensive test suite for a db.Table implementation.
func RunTableTests(t *testing.T, name string, factory TableFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory())
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentUsage", func(t *testing.T) {
			testConcurrentUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, table db.Table) {
	defer table.Close()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	table.Set(testKey, testValue1)

	result, exists := table.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	table.Set(testKey, testValue2)

	result, exists = table.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = table.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := table.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := table.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, table db.Table) {
	defer table.Close()

	testKey := "delete-key"
	table.Set(testKey, []byte("delete-value"))

	if existed := table.Delete(testKey); !existed {
		t.Errorf("Expected Delete to report an existing key")
	}

	if _, exists := table.Get(testKey); exists {
		t.Errorf("Expected key %s to be gone after Delete", testKey)
	}

	if existed := table.Delete(testKey); existed {
		t.Errorf("Expected Delete of a missing key to report existed=false")
	}
}

func testHas(t *testing.T, table db.Table) {
	defer table.Close()

	testKey := "has-key"

	if table.Has(testKey) {
		t.Errorf("Expected Has to return false for a missing key")
	}

	table.Set(testKey, []byte("has-value"))

	if !table.Has(testKey) {
		t.Errorf("Expected Has to return true after Set")
	}

	table.Delete(testKey)

	if table.Has(testKey) {
		t.Errorf("Expected Has to return false after Delete")
	}
}

func testRange(t *testing.T, table db.Table) {
	defer table.Close()

	expected := map[string]string{}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("range-key-%d", i)
		value := fmt.Sprintf("range-value-%d", i)
		expected[key] = value
		table.Set(key, []byte(value))
	}

	seen := map[string]string{}
	table.Range(func(key string, value []byte) bool {
		seen[key] = string(value)
		return true
	})

	if len(seen) != len(expected) {
		t.Errorf("Expected Range to visit %d entries, visited %d", len(expected), len(seen))
	}

	var keys []string
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if seen[k] != expected[k] {
			t.Errorf("Expected Range to yield %s=%s, got %s", k, expected[k], seen[k])
		}
	}

	// early termination
	visited := 0
	table.Range(func(key string, value []byte) bool {
		visited++
		return visited < 10
	})

	if visited != 10 {
		t.Errorf("Expected Range to stop after 10 entries, visited %d", visited)
	}

	if table.Len() != len(expected) {
		t.Errorf("Expected Len to return %d, got %d", len(expected), table.Len())
	}
}

func testClear(t *testing.T, table db.Table) {
	defer table.Close()

	for i := 0; i < 50; i++ {
		table.Set(fmt.Sprintf("clear-key-%d", i), []byte("v"))
	}

	table.Clear()

	if table.Len() != 0 {
		t.Errorf("Expected Len to return 0 after Clear, got %d", table.Len())
	}

	if table.Has("clear-key-0") {
		t.Errorf("Expected keys to be gone after Clear")
	}
}

func testEdgeCases(t *testing.T, table db.Table) {
	defer table.Close()

	// empty value
	table.Set("empty-value", nil)
	value, exists := table.Get("empty-value")
	if !exists {
		t.Errorf("Expected key with nil value to exist")
	}
	if len(value) != 0 {
		t.Errorf("Expected empty value, got %v", value)
	}

	// empty key
	table.Set("", []byte("empty-key-value"))
	value, exists = table.Get("")
	if !exists || !bytes.Equal(value, []byte("empty-key-value")) {
		t.Errorf("Expected empty key to round-trip, got %v (exists=%v)", value, exists)
	}

	// binary keys and values
	binKey := string([]byte{0, 1, 2, 0xff})
	binValue := []byte{0xde, 0xad, 0, 0xbe, 0xef}
	table.Set(binKey, binValue)
	value, exists = table.Get(binKey)
	if !exists || !bytes.Equal(value, binValue) {
		t.Errorf("Expected binary key to round-trip, got %v (exists=%v)", value, exists)
	}
}

func testConcurrentUsage(t *testing.T, table db.Table) {
	defer table.Close()

	const (
		workers = 8
		keys    = 200
	)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", worker, i)
				table.Set(key, []byte(key))
				if value, ok := table.Get(key); !ok || !bytes.Equal(value, []byte(key)) {
					t.Errorf("Concurrent Get(%s) returned %s (ok=%v)", key, value, ok)
					return
				}
			}
		}(w)
	}

	wg.Wait()

	if table.Len() != workers*keys {
		t.Errorf("Expected %d entries after concurrent writes, got %d", workers*keys, table.Len())
	}
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// RunTableBenchmarks runs a standard benchmark suite for a db.Table implementation.
func RunTableBenchmarks(b *testing.B, name string, factory TableFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			table := factory()
			defer table.Close()
			value := []byte("benchmark-value")

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					table.Set(fmt.Sprintf("bench-key-%d", i%1024), value)
					i++
				}
			})
		})

		b.Run("Get", func(b *testing.B) {
			table := factory()
			defer table.Close()
			for i := 0; i < 1024; i++ {
				table.Set(fmt.Sprintf("bench-key-%d", i), []byte("benchmark-value"))
			}

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					table.Get(fmt.Sprintf("bench-key-%d", i%1024))
					i++
				}
			})
		})

		b.Run("Delete", func(b *testing.B) {
			table := factory()
			defer table.Close()

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := fmt.Sprintf("bench-key-%d", i%1024)
					table.Set(key, []byte("v"))
					table.Delete(key)
					i++
				}
			})
		})
	})
}
