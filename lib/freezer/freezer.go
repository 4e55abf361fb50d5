package freezer

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/bmatsuo/lmdb-go/lmdb"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("freezer")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// defaultMapSize is the address-space reservation for the
	// environment. LMDB maps the file sparsely, so a large reservation
	// costs nothing on filesystems with sparse file support.
	defaultMapSize = int64(1) << 40 // 1 TiB

	envFileMode = 0644
)

// dbiName returns the name of the sub-database backing one logical database.
func dbiName(id int) string {
	return fmt.Sprintf("freezer_%d", id)
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config describes the on-disk environment.
type Config struct {
	// Dir is the directory the environment lives in. Created if missing.
	Dir string

	// MapSize is the address-space reservation in bytes (0 = 1 TiB).
	MapSize int64

	// NumDBs is the number of logical databases; one named sub-database
	// is created per logical database.
	NumDBs int
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store owns the embedded KV environment backing the freezer tier.
//
// The environment is opened lazily on first use and may be torn down
// with CloseEnv at any quiescent point; the next operation reopens it.
// There must be exactly one Store per environment directory, and the
// caller must guarantee no handle is outstanding when CloseEnv is
// called. The spillover store satisfies both by construction: it owns
// the single Store instance and serializes all foreground commands.
type Store struct {
	mu   sync.Mutex
	cfg  Config
	env  *lmdb.Env
	dbis []lmdb.DBI
}

// New creates a Store for the given configuration. No I/O happens until
// the first operation.
func New(cfg Config) *Store {
	if cfg.MapSize <= 0 {
		cfg.MapSize = defaultMapSize
	}
	if cfg.NumDBs < 1 {
		cfg.NumDBs = 1
	}
	return &Store{cfg: cfg}
}

// envRef returns the open environment, initializing it if necessary.
func (s *Store) envRef() (*lmdb.Env, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.env != nil {
		return s.env, nil
	}

	Logger.Debugf("initialising freezer environment in %s", s.cfg.Dir)

	if err := os.MkdirAll(s.cfg.Dir, 0755); err != nil {
		return nil, newError(KindEnvInit, "init", err)
	}

	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, newError(KindEnvInit, "init", err)
	}

	if err := env.SetMapSize(s.cfg.MapSize); err != nil {
		env.Close()
		return nil, newError(KindEnvInit, "init", err)
	}

	if err := env.SetMaxDBs(s.cfg.NumDBs); err != nil {
		env.Close()
		return nil, newError(KindEnvInit, "init", err)
	}

	if err := env.Open(s.cfg.Dir, 0, envFileMode); err != nil {
		env.Close()
		return nil, newError(KindEnvInit, "init", err)
	}

	// Create every sub-database up front so read transactions never
	// have to create one. The handles stay valid for the lifetime of
	// the environment.
	dbis := make([]lmdb.DBI, s.cfg.NumDBs)
	err = env.Update(func(txn *lmdb.Txn) error {
		for i := 0; i < s.cfg.NumDBs; i++ {
			dbi, err := txn.OpenDBI(dbiName(i), lmdb.Create)
			if err != nil {
				return err
			}
			dbis[i] = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, newError(KindDbiOpen, "init", err)
	}

	Logger.Debugf("freezer environment initialised (%d sub-databases)", s.cfg.NumDBs)

	s.env = env
	s.dbis = dbis
	return env, nil
}

// CloseEnv tears down the environment. The next operation reopens it
// lazily. This is the pre-background hook: the flush coordinator calls
// it before handing the environment over to a background worker so that
// no stale memory mapping survives the handover.
//
// The caller must guarantee that no handle is outstanding.
func (s *Store) CloseEnv() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.env == nil {
		return
	}

	if err := s.env.Close(); err != nil {
		Logger.Warningf("closing freezer environment: %v", err)
	}
	s.env = nil
	s.dbis = nil
}

// Copy writes an atomic copy of the entire environment (all
// sub-databases) into dst. It must only be called when no transaction
// is open against the environment.
func (s *Store) Copy(dst string) error {
	env, err := s.envRef()
	if err != nil {
		return err
	}

	if err := env.Copy(dst); err != nil {
		return newError(KindCopy, "copy", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Handles
// --------------------------------------------------------------------------

// DBH is a short-lived handle pairing one transaction with one
// sub-database. It is owned by the caller for the duration of a single
// operation and must be released with Close on all paths.
//
// A writer handle holds the environment's single write lock for its
// lifetime and must stay on the goroutine that opened it.
type DBH struct {
	store  *Store
	txn    *lmdb.Txn
	dbi    lmdb.DBI
	id     int
	writer bool
}

// Open begins a transaction against the sub-database of the given
// logical database. Pass writer=true for a read-write handle.
func (s *Store) Open(id int, writer bool) (*DBH, error) {
	env, err := s.envRef()
	if err != nil {
		return nil, err
	}

	if id < 0 || id >= len(s.dbis) {
		return nil, newError(KindDbiOpen, "open", fmt.Errorf("no sub-database for logical database %d", id))
	}

	var flags uint
	if writer {
		// Write transactions are bound to an OS thread for their
		// entire lifetime; Close undoes the pin.
		runtime.LockOSThread()
	} else {
		flags = lmdb.Readonly
	}

	txn, err := env.BeginTxn(nil, flags)
	if err != nil {
		if writer {
			runtime.UnlockOSThread()
		}
		Logger.Warningf("failed to open the freezer for logical database %d: %v", id, err)
		return nil, newError(KindTxnBegin, "open", err)
	}

	return &DBH{
		store:  s,
		txn:    txn,
		dbi:    s.dbis[id],
		id:     id,
		writer: writer,
	}, nil
}

// Close releases the handle: a writer commits its transaction, a reader
// aborts it. Safe to call on a nil handle and idempotent.
func (h *DBH) Close() {
	if h == nil || h.txn == nil {
		return
	}

	if h.writer {
		if err := h.txn.Commit(); err != nil {
			Logger.Warningf("failed to commit freezer txn for logical database %d: %v", h.id, err)
		}
		runtime.UnlockOSThread()
	} else {
		h.txn.Abort()
	}
	h.txn = nil
}

// --------------------------------------------------------------------------
// Key Operations
// --------------------------------------------------------------------------

// Get returns the stored payload for key, or nil if the key is not
// present. An error is returned only if the underlying store fails; a
// miss is not an error.
func (h *DBH) Get(key []byte) ([]byte, error) {
	v, err := h.txn.Get(h.dbi, key)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		Logger.Warningf("freezer get(%s) failed: %v", key, err)
		return nil, newError(KindIO, "get", err)
	}

	// The slice returned by the transaction points into the memory map;
	// copy it out before the transaction ends.
	value := make([]byte, len(v))
	copy(value, v)
	return value, nil
}

// Exists reports whether key is present.
func (h *DBH) Exists(key []byte) (bool, error) {
	_, err := h.txn.Get(h.dbi, key)
	if lmdb.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		Logger.Warningf("freezer exists(%s) failed: %v", key, err)
		return false, newError(KindIO, "exists", err)
	}
	return true, nil
}

// Put stores value under key.
//
// If the transaction has exhausted its capacity the handle commits it,
// begins a fresh one and retries once, invisibly to the caller. Only if
// the retry also fails is an error surfaced.
func (h *DBH) Put(key, value []byte) error {
	err := h.txn.Put(h.dbi, key, value, 0)
	if err == nil {
		return nil
	}

	if lmdb.IsErrno(err, lmdb.TxnFull) {
		// Commit what we have and try one more time in a fresh
		// transaction.
		if cerr := h.txn.Commit(); cerr != nil {
			h.txn = nil
			runtime.UnlockOSThread()
			Logger.Warningf("failed to commit full freezer txn: %v", cerr)
			return newError(KindTxnFull, "put", cerr)
		}

		env, eerr := h.store.envRef()
		if eerr != nil {
			h.txn = nil
			runtime.UnlockOSThread()
			return eerr
		}

		txn, terr := env.BeginTxn(nil, 0)
		if terr != nil {
			h.txn = nil
			runtime.UnlockOSThread()
			Logger.Warningf("failed to reopen freezer txn after commit: %v", terr)
			return newError(KindTxnBegin, "put", terr)
		}
		h.txn = txn

		if rerr := h.txn.Put(h.dbi, key, value, 0); rerr != nil {
			Logger.Warningf("freezer put(%s) failed after txn rotation: %v", key, rerr)
			return newError(KindTxnFull, "put", rerr)
		}
		return nil
	}

	Logger.Warningf("freezer put(%s) failed: %v", key, err)
	return newError(KindIO, "put", err)
}

// Del removes key. Returns whether a key was actually deleted; deleting
// a missing key is not an error.
func (h *DBH) Del(key []byte) (bool, error) {
	err := h.txn.Del(h.dbi, key, nil)
	if lmdb.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		Logger.Warningf("freezer del(%s) failed: %v", key, err)
		return false, newError(KindIO, "del", err)
	}
	return true, nil
}

// Drop removes all entries from the sub-database.
func (h *DBH) Drop() error {
	if err := h.txn.Drop(h.dbi, false); err != nil {
		Logger.Warningf("freezer drop for logical database %d failed: %v", h.id, err)
		return newError(KindIO, "drop", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// WalkKeys iterates every key in the sub-database, calling visit for
// each. Iteration stops early if visit returns false. If interruptEvery
// is positive, yield is invoked after every interruptEvery keys so the
// caller can service other work mid-walk.
func (h *DBH) WalkKeys(visit func(key []byte) bool, interruptEvery int, yield func()) error {
	cur, err := h.txn.OpenCursor(h.dbi)
	if err != nil {
		Logger.Warningf("failed to open freezer cursor: %v", err)
		return newError(KindIO, "walk", err)
	}
	defer cur.Close()

	Logger.Debugf("walking the freezer keyspace for logical database %d", h.id)

	counter := 0
	for {
		k, _, err := cur.Get(nil, nil, lmdb.Next)
		if lmdb.IsNotFound(err) {
			return nil
		}
		if err != nil {
			Logger.Warningf("freezer cursor failed: %v", err)
			return newError(KindIO, "walk", err)
		}

		key := make([]byte, len(k))
		copy(key, k)

		if !visit(key) {
			Logger.Debugf("freezer walk terminated early at visitor's request")
			return nil
		}

		counter++
		if interruptEvery > 0 && counter%interruptEvery == 0 && yield != nil {
			yield()
		}
	}
}
