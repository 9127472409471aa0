// Package pipeline orchestrates a metapub run.
//
// Ingest streams the archive batch by batch into parquet partitions and merges
// them. Process assigns row ids over the merged dataset, decodes every row,
// applies the dedup cascade and writes the canonical outputs. Run performs
// both under one work-directory lock and one ledger entry.
//
// Every entry point runs preflight checks first, takes an exclusive flock on
// the work directory, and records the run in the SQLite ledger when enabled.
// Member and row failures are logged and skipped; archive, lock and output
// failures abort the run.
package pipeline
