// Package spill implements the disk-backed spillover store: the glue
// that binds the live in-memory tables, the dirty-key trackers and the
// freezer tier into one consistent key space.
//
// The consistency model rests on a single rule: a key in the dirty or
// flushing set is memory-authoritative. Writes go to the live table
// first and mark the key dirty; reads consult the live table and fall
// through to the freezer only for unshadowed keys. A background flush
// rotates each dirty set into its flushing set, captures a frozen view
// of the affected values, and drains them to disk without blocking
// foreground traffic. Mutations arriving mid-flush land in the fresh
// dirty sets and are drained by the next flush, never lost.
//
// Foreground commands are serialized under one store mutex, mirroring
// the single-threaded event loop of the original design. The only
// long-running foreground operation, the preload walk, periodically
// releases the mutex to let other commands through.
//
// Administrative traffic enters through Dispatch (the NDS command):
// SNAPSHOT, FLUSH, CLEARSTATS and PRELOAD. Flushes and snapshots reply
// through a parked Replier when the background operation completes.
package spill
