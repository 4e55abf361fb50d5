// Package db defines the interface for the live in-memory tier of the
// spillover store.
//
// The package focuses on:
//   - A unified interface for in-memory key-value tables
//   - Copy semantics that decouple callers from internal storage
//   - Standardized metadata reporting
//
// Key Components:
//
//   - Table Interface: The core interface every live-table engine must
//     satisfy. It provides the basic operations (Set, Get, Has, Delete,
//     Clear), iteration (Range) and metadata retrieval (GetInfo).
//
//   - Table Information: The TableInfo structure provides standardized
//     reporting on table state. Note that size statistics are estimates,
//     since a precise calculation would require a full scan.
//
// The live table deliberately carries no persistence operations: on-disk
// state is owned entirely by the freezer tier (lib/freezer), and the
// spillover store (lib/spill) decides when entries move between the two.
//
// Related Packages:
//
// The engines/arcmap package (github.com/cbergmann/permafrost/lib/db/engines/arcmap)
// provides the default implementation using sharded concurrent maps.
//
// The testing package (github.com/cbergmann/permafrost/lib/db/testing) provides
// standardized tests and benchmarks for implementations of db.Table.
package db
