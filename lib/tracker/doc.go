// Package tracker maintains the dirty-key shadow set of one logical
// database: the record of which in-memory entries have not yet been
// propagated to the freezer tier.
//
// The tracker is the hinge of the consistency model. A shadowed key
// (dirty or mid-flush) must be answered from memory alone; serving the
// freezer copy would resurrect a stale or deleted value. The flush
// coordinator rotates the dirty set into the flushing set when a flush
// begins, and either clears it (success) or merges it back (failure).
package tracker
