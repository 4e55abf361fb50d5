package spill

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cbergmann/permafrost/lib/db"
	"github.com/cbergmann/permafrost/lib/db/engines/arcmap"
	"github.com/cbergmann/permafrost/lib/freezer"
	"github.com/cbergmann/permafrost/lib/payload"
	"github.com/cbergmann/permafrost/lib/tracker"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("spill")

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

const (
	defaultNumDBs           = 16
	defaultSnapshotDir      = "./snapshot"
	preloadInterruptEvery   = 1000
	defaultFreezerDirectory = "."
)

// Config configures a spillover store.
type Config struct {
	// NumDBs is the number of logical databases (default 16).
	NumDBs int

	// Dir is the freezer environment directory (default ".").
	Dir string

	// SnapshotDir is where SNAPSHOT places the environment copy
	// (default "./snapshot"). Removed and recreated on every snapshot.
	SnapshotDir string

	// MapSize overrides the freezer address-space reservation (0 = 1 TiB).
	MapSize int64

	// TableFactory creates the live table for each logical database
	// (default: arcmap).
	TableFactory func() db.Table
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.NumDBs < 1 {
		cfg.NumDBs = defaultNumDBs
	}
	if cfg.Dir == "" {
		cfg.Dir = defaultFreezerDirectory
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = defaultSnapshotDir
	}
	if cfg.TableFactory == nil {
		cfg.TableFactory = func() db.Table { return arcmap.NewArcmapTable(nil) }
	}
	return cfg
}

// --------------------------------------------------------------------------
// Logical Databases
// --------------------------------------------------------------------------

// LDB is one logical database: a live in-memory table plus the tracker
// recording which of its keys diverge from the freezer.
type LDB struct {
	ID      int
	live    db.Table
	tracker *tracker.Tracker
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// ErrBadDB is returned for an out-of-range logical database index.
var ErrBadDB = fmt.Errorf("spill: no such logical database")

// Store binds the live tier, the dirty-key trackers and the freezer
// into the read-through / write-back spillover store.
//
// All foreground commands are serialized under one mutex, mirroring a
// single-threaded event loop: at any instant at most one command
// mutates store state. Background flush workers run outside the mutex
// on data captured while it was held.
type Store struct {
	mu   sync.Mutex
	cfg  Config
	ldbs []*LDB
	frz  *freezer.Store

	// dirty is the global mutation counter; dirtyBeforeFlush is its
	// value when the running flush was started.
	dirty            uint64
	dirtyBeforeFlush uint64

	// background operation state (see flush.go / snapshot.go)
	job                *backgroundJob
	snapshotInProgress bool
	snapshotPending    bool
	requester          Replier

	// preload guards
	preloadInProgress bool
	preloadComplete   bool

	stats    stats
	lastSave int64
}

// NewStore creates a spillover store. The freezer environment is opened
// lazily on first use.
func NewStore(cfg Config) *Store {
	cfg = (&cfg).withDefaults()

	ldbs := make([]*LDB, cfg.NumDBs)
	for i := range ldbs {
		ldbs[i] = &LDB{
			ID:      i,
			live:    cfg.TableFactory(),
			tracker: tracker.New(),
		}
	}

	return &Store{
		cfg:  cfg,
		ldbs: ldbs,
		frz: freezer.New(freezer.Config{
			Dir:     cfg.Dir,
			MapSize: cfg.MapSize,
			NumDBs:  cfg.NumDBs,
		}),
	}
}

// NumDBs returns the number of logical databases.
func (s *Store) NumDBs() int {
	return len(s.ldbs)
}

// Close releases the live tables and the freezer environment. Must not
// be called while a background operation is running.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		return fmt.Errorf("spill: background operation still in flight")
	}
	if s.preloadInProgress {
		return fmt.Errorf("spill: preload in progress")
	}

	for _, ldb := range s.ldbs {
		if err := ldb.live.Close(); err != nil {
			Logger.Warningf("closing live table %d: %v", ldb.ID, err)
		}
	}
	s.frz.CloseEnv()
	return nil
}

func (s *Store) ldb(dbid int) (*LDB, error) {
	if dbid < 0 || dbid >= len(s.ldbs) {
		return nil, ErrBadDB
	}
	return s.ldbs[dbid], nil
}

func (s *Store) dirtyCountLocked() int {
	count := 0
	for _, ldb := range s.ldbs {
		count += ldb.tracker.DirtyCount()
	}
	return count
}

func (s *Store) flushingCountLocked() int {
	count := 0
	for _, ldb := range s.ldbs {
		count += ldb.tracker.FlushingCount()
	}
	return count
}

// --------------------------------------------------------------------------
// Foreground Key Commands
// --------------------------------------------------------------------------

// Set writes a key into the live table and marks it dirty. The freezer
// copy, if any, becomes stale and is shadowed until the next flush
// propagates the new value.
func (s *Store) Set(dbid int, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ldb, err := s.ldb(dbid)
	if err != nil {
		return err
	}

	ldb.live.Set(key, value)
	ldb.tracker.Touch(key)
	s.dirty++
	return nil
}

// Get returns the value for a key, consulting the live table first and
// falling through to the freezer only for unshadowed keys.
func (s *Store) Get(dbid int, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ldb, err := s.ldb(dbid)
	if err != nil {
		return nil, false, err
	}

	if value, ok := ldb.live.Get(key); ok {
		s.stats.hit()
		return value, true, nil
	}
	s.stats.miss()

	value, ok := s.getNDSLocked(ldb, key)
	if !ok {
		return nil, false, nil
	}

	// Promote the thawed value into the live table. The copies agree,
	// so the key is not dirtied.
	ldb.live.Set(key, value)
	return value, true, nil
}

// Exists reports whether a key exists, with the same shadowing rules as
// Get but without decoding the payload.
func (s *Store) Exists(dbid int, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ldb, err := s.ldb(dbid)
	if err != nil {
		return false, err
	}

	if ldb.live.Has(key) {
		s.stats.hit()
		return true, nil
	}
	s.stats.miss()

	return s.existsNDSLocked(ldb, key), nil
}

// Delete removes a key. The removal is recorded in the dirty set so the
// next flush deletes the freezer copy too; until then the tracker
// shadows it (a dirty key absent from memory is logically deleted).
func (s *Store) Delete(dbid int, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ldb, err := s.ldb(dbid)
	if err != nil {
		return false, err
	}

	existed := ldb.live.Delete(key)
	if !existed {
		existed = s.existsNDSLocked(ldb, key)
	}

	if existed {
		ldb.tracker.Touch(key)
		s.dirty++
	}
	return existed, nil
}

// --------------------------------------------------------------------------
// Freezer Miss Paths
// --------------------------------------------------------------------------

// getNDSLocked fetches and thaws a value from the freezer. Any freezer
// failure degrades to a miss: the in-memory tier is the source of truth
// and a read must never fail because the disk tier is unhappy.
func (s *Store) getNDSLocked(ldb *LDB, key string) ([]byte, bool) {
	// A shadowed key must be in memory if it still exists. If we got
	// here it is not in memory, so it does not exist; the freezer copy
	// is stale and must not be served.
	if ldb.tracker.IsShadowed(key) {
		return nil, false
	}

	h, err := s.frz.Open(ldb.ID, false)
	if err != nil {
		return nil, false
	}
	defer h.Close()

	raw, err := h.Get([]byte(key))
	if err != nil || raw == nil {
		return nil, false
	}

	value, err := payload.Decode(raw)
	if err != nil {
		Logger.Warningf("invalid payload for key %s in logical database %d; ignoring: %v", key, ldb.ID, err)
		return nil, false
	}

	Logger.Debugf("key %s thawed from freezer %d", key, ldb.ID)
	return value, true
}

// existsNDSLocked checks the freezer with the same shadowing
// short-circuit as getNDSLocked.
func (s *Store) existsNDSLocked(ldb *LDB, key string) bool {
	if ldb.tracker.IsShadowed(key) {
		return false
	}

	h, err := s.frz.Open(ldb.ID, false)
	if err != nil {
		return false
	}
	defer h.Close()

	ok, err := h.Exists([]byte(key))
	if err != nil {
		return false
	}
	return ok
}

// --------------------------------------------------------------------------
// Administrative Operations
// --------------------------------------------------------------------------

// NukeAll drops every freezer sub-database. The live tier is untouched.
func (s *Store) NukeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preloadInProgress {
		return fmt.Errorf("spill: preload in progress")
	}

	for _, ldb := range s.ldbs {
		h, err := s.frz.Open(ldb.ID, true)
		if err != nil {
			return err
		}
		err = h.Drop()
		h.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Preload walks every freezer sub-database and loads each key that is
// not already in memory into the live table. Idempotent: only the first
// call performs work; the guard flags make repeated and concurrent
// calls no-ops.
//
// The walk yields to other commands every thousand keys by releasing
// the store mutex, so a long preload does not starve foreground
// traffic.
func (s *Store) Preload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preloadInProgress || s.preloadComplete {
		return
	}

	Logger.Infof("preloading all keys from the freezer")
	s.preloadInProgress = true

	yield := func() {
		// let queued commands run mid-walk
		s.mu.Unlock()
		runtime.Gosched()
		s.mu.Lock()
	}

	for _, ldb := range s.ldbs {
		s.preloadLDBLocked(ldb, yield)
	}

	Logger.Infof("freezer preload complete")
	s.preloadInProgress = false
	s.preloadComplete = true
}

func (s *Store) preloadLDBLocked(ldb *LDB, yield func()) {
	h, err := s.frz.Open(ldb.ID, false)
	if err != nil {
		return
	}
	defer h.Close()

	err = h.WalkKeys(func(rawKey []byte) bool {
		key := string(rawKey)

		// A shadowed key is either logically deleted or newer in
		// memory; resurrecting the freezer copy would be wrong either
		// way.
		if ldb.live.Has(key) || ldb.tracker.IsShadowed(key) {
			return true
		}

		raw, err := h.Get(rawKey)
		if err != nil || raw == nil {
			return true
		}

		value, err := payload.Decode(raw)
		if err != nil {
			Logger.Warningf("invalid payload for key %s in logical database %d; ignoring: %v", key, ldb.ID, err)
			return true
		}

		ldb.live.Set(key, value)
		return true
	}, preloadInterruptEvery, yield)

	if err != nil {
		Logger.Warningf("preload walk for logical database %d failed: %v", ldb.ID, err)
	}
}
