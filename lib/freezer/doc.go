// Package freezer implements the on-disk tier of the spillover store:
// an embedded, memory-mapped KV environment holding one named
// sub-database per logical database.
//
// The environment is a single-owner resource. It is opened lazily on
// first use, sized with a large sparse address-space reservation, and
// can be torn down at any quiescent point with CloseEnv; the next
// operation reopens it. The flush coordinator relies on this to hand
// the environment over to a background worker without sharing a live
// memory mapping.
//
// All access goes through short-lived handles (DBH) pairing one
// transaction with one sub-database. Writer handles serialize at the
// environment level; reader handles see a consistent snapshot and run
// concurrently with a writer. A handle is owned by a single operation
// and must be released with Close on every path.
package freezer
