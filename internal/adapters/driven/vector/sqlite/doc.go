// Package sqlite provides an embedded vector backend on SQLite.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. It serves single-node deployments and tests; search is exact
// (brute force) so the HNSW parameters are recorded but not used.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Collections and their entities live in two tables;
// vectors are little-endian float32 blobs.
//
// # Filters
//
// Filter expressions are compiled with the filter package and evaluated per row.
//
// # Thread Safety
//
// All operations are thread-safe. The backend uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
