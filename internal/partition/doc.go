// Package partition persists extracted batches as parquet partition files and
// consolidates them into a single merged dataset.
//
// Each batch is written once to <dir>/<ordinal>.parquet right after it is
// extracted. After the archive pass the Merger streams every partition, in
// ordinal order, into one merged file and removes the partitions.
package partition
