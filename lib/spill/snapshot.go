package spill

import (
	"os"
)

// --------------------------------------------------------------------------
// Snapshot Coordinator
// --------------------------------------------------------------------------

// Snapshot parks the requester and arranges an atomic on-disk copy of
// the freezer environment. The snapshot rides on top of a dirty-key
// flush, so the copy reflects exactly the state that was drained.
//
// If a flush is already running the snapshot is deferred: the
// completion handler starts a follow-up flush+snapshot when the current
// operation finishes. Only one snapshot can be pending or in progress
// at a time.
func (s *Store) Snapshot(c Replier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshotPending || s.snapshotInProgress {
		replyError(c, "NDS SNAPSHOT already in progress")
		return
	}

	if s.requester != nil {
		replyError(c, "NDS background operation already in progress")
		return
	}

	s.requester = c

	if s.job == nil {
		s.snapshotInProgress = true
		if err := s.backgroundDirtyFlushLocked(); err != nil {
			Logger.Warningf("snapshot flush failed to start: %v", err)
			replyError(c, "NDS SNAPSHOT failed to start; consult logs for details")
			s.requester = nil
			s.snapshotInProgress = false
		}
	} else {
		// A regular flush is already in progress; we'll have to do our
		// snapshot later.
		s.snapshotPending = true
	}
}

// copySnapshot produces the environment copy. Runs in the background
// worker after all batch transactions have been committed, so no write
// transaction is open against the environment during the copy.
func (s *Store) copySnapshot() error {
	dst := s.cfg.SnapshotDir

	if err := os.RemoveAll(dst); err != nil {
		Logger.Warningf("snapshot failed: removing %s: %v", dst, err)
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		Logger.Warningf("snapshot failed: creating %s: %v", dst, err)
		return err
	}

	if err := s.frz.Copy(dst); err != nil {
		Logger.Warningf("snapshot failed: %v", err)
		return err
	}

	Logger.Infof("freezer snapshot written to %s", dst)
	return nil
}
