package spill

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Exported Metrics
// --------------------------------------------------------------------------

// Process-wide counters exported via the metrics endpoint. The per-store
// counters below are the source of truth for Stats(); these mirror them
// for Prometheus scraping.
var (
	metricFlushSuccess = metrics.NewCounter("permafrost_flush_success_total")
	metricFlushFailure = metrics.NewCounter("permafrost_flush_failure_total")
	metricCacheHits    = metrics.NewCounter("permafrost_cache_hits_total")
	metricCacheMisses  = metrics.NewCounter("permafrost_cache_misses_total")
)

// --------------------------------------------------------------------------
// Per-Store Counters
// --------------------------------------------------------------------------

type stats struct {
	flushSuccess atomic.Uint64
	flushFailure atomic.Uint64
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
}

func (st *stats) hit() {
	st.cacheHits.Add(1)
	metricCacheHits.Inc()
}

func (st *stats) miss() {
	st.cacheMisses.Add(1)
	metricCacheMisses.Inc()
}

// --------------------------------------------------------------------------
// Snapshot
// --------------------------------------------------------------------------

// StatsSnapshot is a point-in-time view of the store's observable state.
type StatsSnapshot struct {
	FlushSuccess uint64 `json:"flush_success"`
	FlushFailure uint64 `json:"flush_failure"`
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`

	DirtyKeys    int `json:"dirty_keys"`
	FlushingKeys int `json:"flushing_keys"`

	LastSaveUnix int64 `json:"last_save_unix"`

	PreloadInProgress bool `json:"preload_in_progress"`
	PreloadComplete   bool `json:"preload_complete"`
}

// Stats returns a snapshot of the store's counters and flags.
func (s *Store) Stats() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatsSnapshot{
		FlushSuccess:      s.stats.flushSuccess.Load(),
		FlushFailure:      s.stats.flushFailure.Load(),
		CacheHits:         s.stats.cacheHits.Load(),
		CacheMisses:       s.stats.cacheMisses.Load(),
		DirtyKeys:         s.dirtyCountLocked(),
		FlushingKeys:      s.flushingCountLocked(),
		LastSaveUnix:      s.lastSave,
		PreloadInProgress: s.preloadInProgress,
		PreloadComplete:   s.preloadComplete,
	}
}

// ClearStats zeroes the cache hit/miss counters.
func (s *Store) ClearStats() {
	s.stats.cacheHits.Store(0)
	s.stats.cacheMisses.Store(0)
	metricCacheHits.Set(0)
	metricCacheMisses.Set(0)
}
