// Package ledger keeps a SQLite history of pipeline runs.
//
// Each run gets a UUID and one row in the runs table; every ingested batch
// adds a row to batches. The ledger is informational: the pipeline never
// reads it back to decide what to process.
package ledger
