package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"metapub/internal/archive"
	"metapub/internal/failure"
	"metapub/internal/fileutil"
	"metapub/internal/logging"
)

const partitionPattern = "*.parquet"

// Writer persists batch frames as partition files.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logging.NewComponentLogger(logger, "partition")}
}

// Dir returns the partition directory.
func (w *Writer) Dir() string {
	return w.dir
}

// PathFor returns the partition file for ordinal.
func (w *Writer) PathFor(ordinal int) string {
	return filepath.Join(w.dir, strconv.Itoa(ordinal)+".parquet")
}

// Reset prepares the directory for a fresh ingest, removing partitions and
// temp files left behind by an interrupted run.
func (w *Writer) Reset(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return failure.Wrap(failure.ErrIO, "ingest", "create partition dir", w.dir, err)
	}
	removed, err := fileutil.RemoveMatching(w.dir, partitionPattern)
	if err != nil {
		return failure.Wrap(failure.ErrIO, "ingest", "remove stale partitions", w.dir, err)
	}
	temps, err := fileutil.RemoveMatching(w.dir, ".*.tmp")
	if err != nil {
		return failure.Wrap(failure.ErrIO, "ingest", "remove temp files", w.dir, err)
	}
	if n := len(removed) + len(temps); n > 0 {
		logging.WarnWithContext(ctx, w.logger, "removed files from a previous run", "stale_partitions",
			logging.String("dir", w.dir),
			logging.Int("partitions", len(removed)),
			logging.Int("temp_files", len(temps)),
			logging.String(logging.FieldErrorHint, "a previous ingest did not finish"),
			logging.String(logging.FieldImpact, "ingest restarts from the first batch"),
		)
	}
	return nil
}

// Write persists frame as the partition for ordinal and returns its path.
// An empty frame is rejected; callers skip batches that produced nothing.
func (w *Writer) Write(ordinal int, frame archive.Frame) (string, error) {
	if len(frame) == 0 {
		return "", failure.Wrap(failure.ErrValidation, "ingest", "write partition", fmt.Sprintf("batch %d is empty", ordinal), nil)
	}
	path := w.PathFor(ordinal)
	err := fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		pw := newRecordWriter(out)
		if _, err := pw.Write(frame); err != nil {
			return errors.Join(err, pw.Close())
		}
		return pw.Close()
	})
	if err != nil {
		return "", failure.Wrap(failure.ErrIO, "ingest", "write partition", path, err)
	}
	w.logger.Debug("partition written",
		logging.Int(logging.FieldBatch, ordinal),
		logging.Int("rows", len(frame)),
		logging.String("path", path),
	)
	return path, nil
}
