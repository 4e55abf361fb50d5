// Package arcmap implements the db.Table interface with sharded
// concurrent maps.
//
// Keys are distributed over the shards with a runtime-seeded hash
// (hash/maphash, one seed per table); each shard is an independent
// concurrent map, so readers never block each other and a Range over
// one shard does not contend with writes to another. Values are copied on the way in and on the way out, which
// keeps stored data isolated from caller mutation. This matters for the
// spillover store: a background flush captures value snapshots while
// foreground writes continue.
//
// The engine carries no expiry or persistence machinery. Durability is
// the freezer tier's job (lib/freezer); the table is purely the
// memory-authoritative working set.
package arcmap
