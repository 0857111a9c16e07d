// Package store provides the SQLite ledger of runs and sweeps.
//
// The ledger is append-mostly:
//   - Sweeps: one row per sweep, counters kept current as runs complete
//   - Sweep runs: one row per grid point, keyed by (sweep_id, idx)
//   - Case runs: single program runs started from the run command
//
// Sweep aggregates on disk remain the primary record; the ledger lets
// repeated sweeps be found by fingerprint and listed across output
// directories.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// JSON columns hold canonical JSON (internal/canonical) so equal values
// always store equal text.
package store
