// Package output writes the canonical publisher dataset: a parquet file with
// columns row_id, publisher, pub_omid and pub_cr, an optional CSV copy with
// the same header, and a sorted list of distinct literals. Every file is
// replaced atomically.
package output
