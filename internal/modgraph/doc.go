// Package modgraph builds the shared library archive.
//
// Compilation units are scanned for the interfaces they provide (MODULE
// declarations) and require (USE statements). The resulting dependency graph
// is checked for missing interfaces and cycles before anything is compiled,
// then units are compiled in a deterministic topological order and archived.
//
// # Ordering
//
// Kahn's algorithm with a lexical tie-break on the unit's relative path, so the
// same library always compiles in the same order. When no unit declares any
// interface the relation cannot be inferred and the configured bootstrap
// units are compiled first, followed by every other unit in lexical order.
//
// # Incremental builds
//
// An existing archive is reused unless a rebuild is forced. A rebuild wipes
// objects, interface files and the archive first; the new archive is written
// under a temporary name and renamed into place only after every unit
// compiled, so a failed build never leaves a usable partial archive.
package modgraph
