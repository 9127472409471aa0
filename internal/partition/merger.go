package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"metapub/internal/archive"
	"metapub/internal/failure"
	"metapub/internal/fileutil"
	"metapub/internal/logging"
)

// MergedFileName is the consolidated dataset inside the merged directory.
const MergedFileName = "part-0.parquet"

// MergeResult describes a completed merge.
type MergeResult struct {
	Path       string
	Partitions int
	Rows       int64
	// DirRemoved is false when the emptied partition directory could not be
	// removed.
	DirRemoved bool
	// DirNotEmpty is set when removal failed because other files remain.
	DirNotEmpty bool
}

// Merger consolidates a partition directory into one merged file.
type Merger struct {
	partitionDir string
	mergedDir    string
	chunkRows    int
	logger       *slog.Logger
}

// NewMerger builds a Merger.
func NewMerger(partitionDir, mergedDir string, logger *slog.Logger) *Merger {
	return &Merger{
		partitionDir: partitionDir,
		mergedDir:    mergedDir,
		chunkRows:    DefaultChunkRows,
		logger:       logging.NewComponentLogger(logger, "merger"),
	}
}

// MergedPath returns where Merge writes the consolidated file.
func (m *Merger) MergedPath() string {
	return filepath.Join(m.mergedDir, MergedFileName)
}

// Merge writes every partition into the merged file, then deletes the
// partitions and, best effort, the partition directory. With no partitions
// the merged file is still written, with zero rows.
func (m *Merger) Merge(ctx context.Context) (MergeResult, error) {
	ds, err := OpenDataset(m.partitionDir)
	if err != nil {
		return MergeResult{}, failure.Wrap(failure.ErrIO, "merge", "open dataset", m.partitionDir, err)
	}
	if err := os.MkdirAll(m.mergedDir, 0o755); err != nil {
		return MergeResult{}, failure.Wrap(failure.ErrIO, "merge", "create merged dir", m.mergedDir, err)
	}

	expected, err := ds.NumRows()
	if err != nil {
		return MergeResult{}, failure.Wrap(failure.ErrValidation, "merge", "count partition rows", m.partitionDir, err)
	}

	result := MergeResult{Path: m.MergedPath(), Partitions: ds.Len()}
	err = fileutil.WriteAtomic(result.Path, 0o644, func(out io.Writer) error {
		pw := newRecordWriter(out)
		scanErr := ds.Scan(ctx, m.chunkRows, func(rows []archive.Record) error {
			n, err := pw.Write(rows)
			result.Rows += int64(n)
			return err
		})
		if scanErr != nil {
			return errors.Join(scanErr, pw.Close())
		}
		return pw.Close()
	})
	if err != nil {
		if ctx.Err() != nil {
			return MergeResult{}, err
		}
		return MergeResult{}, failure.Wrap(failure.ErrIO, "merge", "write merged dataset", result.Path, err)
	}

	// Partitions stay on disk until the merged file accounts for every row.
	if result.Rows != expected {
		_ = os.Remove(result.Path)
		return MergeResult{}, failure.Wrap(failure.ErrValidation, "merge", "verify row count",
			fmt.Sprintf("merged %d rows, partitions hold %d", result.Rows, expected), nil)
	}

	if ds.Len() == 0 {
		logging.WarnWithContext(ctx, m.logger, "no partitions to merge", "merge_empty",
			logging.String("dir", m.partitionDir),
			logging.String(logging.FieldErrorHint, "check archive.member_prefix, member_suffix and column"),
			logging.String(logging.FieldImpact, "merged dataset has zero rows"),
		)
	}

	for _, path := range ds.Paths() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return result, failure.Wrap(failure.ErrIO, "merge", "remove partition", path, err)
		}
	}
	result.DirRemoved, result.DirNotEmpty = m.removeDir(ctx)

	m.logger.Info("partitions merged",
		logging.Int("partitions", result.Partitions),
		logging.Int64("rows", result.Rows),
		logging.String("path", result.Path),
	)
	return result, nil
}

func (m *Merger) removeDir(ctx context.Context) (removed, notEmpty bool) {
	err := os.Remove(m.partitionDir)
	if err == nil || os.IsNotExist(err) {
		return true, false
	}
	reason := "directory could not be removed"
	hint := "check permissions on the work directory"
	if empty, statErr := fileutil.IsDirEmpty(m.partitionDir); statErr == nil && !empty {
		notEmpty = true
		reason = "directory still holds files that are not partitions"
		hint = "remove the leftover files manually once they are no longer needed"
	}
	logging.WarnWithContext(ctx, m.logger, "partition directory not removed", "cleanup_failed",
		logging.String("dir", m.partitionDir),
		logging.String("reason", reason),
		logging.Error(fmt.Errorf("remove dir: %w", err)),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "merged dataset is complete; stale directory remains"),
	)
	return false, notEmpty
}
