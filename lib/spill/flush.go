package spill

import (
	"fmt"
	"time"

	"github.com/cbergmann/permafrost/lib/payload"
)

// --------------------------------------------------------------------------
// Background Job State
// --------------------------------------------------------------------------

// flushEntry is one captured key: either a value snapshot to write or a
// tombstone to delete.
type flushEntry struct {
	key       string
	value     []byte
	tombstone bool
}

// flushBatch is the captured work for one logical database.
type flushBatch struct {
	dbid    int
	entries []flushEntry
}

// backgroundJob represents the single in-flight background operation.
// The worker reports its outcome on done; a nil error stands in for the
// child's zero exit status.
type backgroundJob struct {
	done     chan error
	snapshot bool
	started  time.Time
}

// --------------------------------------------------------------------------
// Flush Trigger
// --------------------------------------------------------------------------

// Flush parks the requester and starts a background dirty-key flush. If
// a background operation is already running the requester is parked on
// it and answered when it completes. At most one requester can wait at
// a time; a second one is rejected loudly rather than queued.
func (s *Store) Flush(c Replier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requester != nil {
		replyError(c, "NDS background operation already in progress")
		return
	}

	s.requester = c

	if s.job == nil {
		if err := s.backgroundDirtyFlushLocked(); err != nil {
			Logger.Warningf("background flush failed to start: %v", err)
			replyError(c, "NDS FLUSH failed to start; consult logs for details")
			s.requester = nil
		}
	}
}

// BackgroundDirtyFlush starts a flush without a requester, for
// autonomous flush policies. Returns an error if the flush cannot
// start.
func (s *Store) BackgroundDirtyFlush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backgroundDirtyFlushLocked()
}

// backgroundDirtyFlushLocked is the fork point of the original design,
// rendered without fork: rotation plus a value-snapshot capture under
// the store mutex gives the worker the same frozen view of the dirty
// keys a copy-on-write child would inherit.
func (s *Store) backgroundDirtyFlushLocked() error {
	if s.job != nil {
		return fmt.Errorf("background operation already in flight")
	}
	if s.preloadInProgress {
		return fmt.Errorf("preload in progress")
	}

	// Programmer-error case: a leftover flushing set means a previous
	// completion handler never ran. Refuse loudly.
	for _, ldb := range s.ldbs {
		if ldb.tracker.FlushingCount() > 0 {
			Logger.Errorf("refusing to flush: logical database %d still has keys being flushed", ldb.ID)
			return fmt.Errorf("flushing set not empty")
		}
	}

	s.dirtyBeforeFlush = s.dirty

	// Rotate every tracker and capture the flushing keys with their
	// current live values. From here on, foreground mutations land in
	// the fresh dirty sets and are invisible to this flush.
	var batches []flushBatch
	captured := 0
	for _, ldb := range s.ldbs {
		ldb.tracker.Rotate()

		keys := ldb.tracker.FlushingKeys()
		if len(keys) == 0 {
			continue
		}

		entries := make([]flushEntry, 0, len(keys))
		for _, key := range keys {
			if value, ok := ldb.live.Get(key); ok {
				entries = append(entries, flushEntry{key: key, value: value})
			} else {
				// Key must have been deleted after it got dirtied.
				entries = append(entries, flushEntry{key: key, tombstone: true})
			}
		}

		batches = append(batches, flushBatch{dbid: ldb.ID, entries: entries})
		captured += len(entries)
	}

	// The environment must not carry a live mapping across the
	// handover; the worker reopens it lazily.
	s.frz.CloseEnv()

	job := &backgroundJob{
		done:     make(chan error, 1),
		snapshot: s.snapshotInProgress,
		started:  time.Now(),
	}
	s.job = job

	Logger.Debugf("dirty key flush started (%d keys captured)", captured)

	go s.runFlushWorker(job, batches)
	return nil
}

// --------------------------------------------------------------------------
// Flush Worker (background)
// --------------------------------------------------------------------------

// runFlushWorker drains the captured batches into the freezer. It runs
// without the store mutex and touches nothing but the freezer and its
// own batch data; the completion handler picks up the outcome on the
// foreground side.
func (s *Store) runFlushWorker(job *backgroundJob, batches []flushBatch) {
	err := s.flushDirtyKeys(batches)

	if err == nil && job.snapshot {
		err = s.copySnapshot()
	}

	job.done <- err
}

func (s *Store) flushDirtyKeys(batches []flushBatch) error {
	Logger.Debugf("flushing dirty keys")

	for _, batch := range batches {
		Logger.Debugf("flushing %d keys for logical database %d", len(batch.entries), batch.dbid)

		h, err := s.frz.Open(batch.dbid, true)
		if err != nil {
			return err
		}

		for _, entry := range batch.entries {
			if entry.tombstone {
				if _, err := h.Del([]byte(entry.key)); err != nil {
					h.Close()
					return err
				}
				continue
			}

			if err := h.Put([]byte(entry.key), payload.Encode(entry.value)); err != nil {
				h.Close()
				return err
			}
		}

		h.Close()
	}

	Logger.Debugf("flush complete")
	return nil
}

// --------------------------------------------------------------------------
// Completion Handling (foreground)
// --------------------------------------------------------------------------

// CheckBackgroundComplete performs a non-blocking check for a finished
// background operation and runs the completion handler if one has. The
// server cron calls this periodically, the way the original event loop
// reaped its child.
func (s *Store) CheckBackgroundComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil {
		return
	}

	select {
	case err := <-s.job.done:
		s.onBackgroundDoneLocked(err)
	default:
	}
}

// onBackgroundDoneLocked is the completion handler: it settles the
// tracker state, the stats, the parked requester and any deferred
// snapshot.
func (s *Store) onBackgroundDoneLocked(err error) {
	wasSnapshot := s.snapshotInProgress
	s.snapshotInProgress = false

	if err == nil {
		Logger.Infof("background save completed in %s", time.Since(s.job.started))

		for _, ldb := range s.ldbs {
			ldb.tracker.ClearFlushing()
		}
		s.dirty -= s.dirtyBeforeFlush
		s.lastSave = time.Now().Unix()
		s.stats.flushSuccess.Add(1)
		metricFlushSuccess.Inc()

		// Hold the requester across a deferred-snapshot handoff: the
		// client asked for the snapshot, not for this flush.
		if s.requester != nil && !s.snapshotPending {
			s.requester.ReplyOK()
			s.requester = nil
		}
	} else {
		Logger.Warningf("background save failed: %v", err)

		s.stats.flushFailure.Add(1)
		metricFlushFailure.Inc()

		// Merge the flushing keys back into the dirty keys so that
		// they'll be retried on the next flush, since we can't know
		// for certain whether they got flushed before the worker died.
		for _, ldb := range s.ldbs {
			ldb.tracker.MergeFlushingBack()
		}

		if s.requester != nil {
			if wasSnapshot {
				s.requester.ReplyError("NDS SNAPSHOT failed in child; consult logs for details")
			} else {
				s.requester.ReplyError("NDS FLUSH failed in child; consult logs for details")
			}
			s.requester = nil
		}
	}

	s.job = nil

	if s.snapshotPending {
		// Trigger the deferred snapshot job now.
		s.snapshotInProgress = true
		s.snapshotPending = false
		if err := s.backgroundDirtyFlushLocked(); err != nil {
			Logger.Warningf("delayed snapshot failed to start: %v", err)
			s.snapshotInProgress = false
			if s.requester != nil {
				s.requester.ReplyError("Delayed NDS SNAPSHOT failed; consult logs for details")
				s.requester = nil
			}
		}
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func replyError(c Replier, msg string) {
	if c != nil {
		c.ReplyError(msg)
	}
}
