// Package testing provides standardized tests and benchmarks for
// implementations of the db.Table interface.
//   - RunTableTests: Runs a standardized test suite to validate implementations
//   - RunTableBenchmarks: Provides performance benchmarks for comparing implementations
package testing
