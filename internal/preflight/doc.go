// Package preflight checks that a run can start: the archive is a readable
// regular file, the work and output directories are usable, and the work
// directory's filesystem has room for partitions.
//
// Failed archive and directory checks are fatal. Low free space is reported
// as a warning only, since the partition footprint depends on the data.
package preflight
