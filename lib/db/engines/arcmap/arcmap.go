package arcmap

import (
	"hash/maphash"
	"runtime"

	"github.com/cbergmann/permafrost/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Core arcmap table structure
// --------------------------------------------------------------------------

// arcmapImpl implements db.Table with sharded concurrent maps. Sharding
// keeps Range and GetInfo from contending on a single map while the
// spillover store reads and writes concurrently with flush workers.
type arcmapImpl struct {
	numShards int                            // Number of shards
	seed      maphash.Seed                   // Per-table seed for shard selection
	shards    []*xsync.MapOf[string, []byte] // Array of shards
}

// TableOptions configures the arcmap behavior during initialization
type TableOptions struct {
	NumShards int // Number of shards (0 = one per CPU)
}

// DefaultOptions returns the default arcmap options
func DefaultOptions() *TableOptions {
	return &TableOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewArcmapTable creates a new arcmap instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewArcmapTable(opts *TableOptions) db.Table {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards < 1 {
		opts.NumShards = runtime.NumCPU()
	}

	shards := make([]*xsync.MapOf[string, []byte], opts.NumShards)
	for i := 0; i < opts.NumShards; i++ {
		shards[i] = xsync.NewMapOf[string, []byte]()
	}

	return &arcmapImpl{
		numShards: opts.NumShards,
		seed:      maphash.MakeSeed(),
		shards:    shards,
	}
}

// shardFor returns the shard responsible for a key. The seed is drawn
// per table, so two tables never agree on a hot shard for the same key
// set.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) shardFor(key string) *xsync.MapOf[string, []byte] {
	return t.shards[maphash.String(t.seed, key)%uint64(t.numShards)]
}

// --------------------------------------------------------------------------
// Table Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry. The value is copied to prevent the
// caller from mutating stored data.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) Set(key string, value []byte) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	t.shardFor(key).Store(key, valueCopy)
}

// Delete removes an entry and reports whether it existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) Delete(key string) bool {
	_, existed := t.shardFor(key).LoadAndDelete(key)
	return existed
}

// Clear removes all entries from all shards.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) Clear() {
	for _, shard := range t.shards {
		shard.Clear()
	}
}

// --------------------------------------------------------------------------
// Table Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key. The returned value is a copy of the
// stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) Get(key string) ([]byte, bool) {
	value, ok := t.shardFor(key).Load(key)
	if !ok {
		return nil, false
	}

	data := make([]byte, len(value))
	copy(data, value)
	return data, true
}

// Has checks if a key exists in the table.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) Has(key string) bool {
	_, ok := t.shardFor(key).Load(key)
	return ok
}

// Range calls fn for every entry until fn returns false. Entries stored
// or deleted concurrently may or may not be visited.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) Range(fn func(key string, value []byte) bool) {
	for _, shard := range t.shards {
		stop := false
		shard.Range(func(key string, value []byte) bool {
			if !fn(key, value) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}

// Len returns the number of entries across all shards.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *arcmapImpl) Len() int {
	total := 0
	for _, shard := range t.shards {
		total += shard.Size()
	}
	return total
}

// --------------------------------------------------------------------------
// Table Interface Methods - Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the table, estimated from a bounded
// per-shard sample (see stats.go).
func (t *arcmapImpl) GetInfo() db.TableInfo {
	sample := t.sampleShards()
	entries := 0
	for _, size := range sample.shardSizes {
		entries += size
	}

	meta := &struct {
		ShardCount     int     `json:"shard_count"`
		MinShardSize   int     `json:"min_shard_size"`
		MaxShardSize   int     `json:"max_shard_size"`
		ShardImbalance float64 `json:"shard_imbalance"`
		SampledEntries int     `json:"sampled_entries"`
		LargestSampled int     `json:"largest_sampled_bytes"`
		Info           string  `json:"info"`
	}{
		ShardCount:     t.numShards,
		MinShardSize:   sample.minShard(),
		MaxShardSize:   sample.maxShard(),
		ShardImbalance: sample.imbalance(),
		SampledEntries: sample.entries,
		LargestSampled: sample.largest,
		Info:           "All size values are sampled estimates and may vary depending on the table state.",
	}

	return db.TableInfo{
		Entries:   entries,
		SizeBytes: sample.meanEntrySize() * entries,
		TableType: db.ImplArcmap,
		Metadata:  meta,
	}
}

// Close releases the shards.
func (t *arcmapImpl) Close() error {
	t.Clear()
	return nil
}
