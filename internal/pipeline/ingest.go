package pipeline

import (
	"context"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"metapub/internal/archive"
	"metapub/internal/failure"
	"metapub/internal/fileutil"
	"metapub/internal/ledger"
	"metapub/internal/logging"
	"metapub/internal/partition"
	"metapub/internal/preflight"
)

// IngestResult summarizes the archive pass.
type IngestResult struct {
	RunID          string
	Batches        int
	EmptyBatches   int
	Members        int
	SkippedMembers int
	EmptyMembers   int
	SkippedEntries int
	Rows           int64
	Partitions     int
	MergedPath     string
}

// Ingest streams the archive into partitions and merges them.
func (p *Pipeline) Ingest(ctx context.Context) (IngestResult, error) {
	var res IngestResult
	id, err := p.execute(ctx, "ingest", preflight.ScopeIngest, nil, func(ctx context.Context, rs *runState) error {
		var err error
		res, err = p.ingest(ctx, rs)
		return err
	})
	res.RunID = id
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context, rs *runState) (IngestResult, error) {
	var res IngestResult
	cfg := p.cfg

	writer := partition.NewWriter(cfg.PartitionDir(), rs.logger)
	if err := writer.Reset(ctx); err != nil {
		return res, err
	}

	cur, err := archive.Open(cfg.Paths.Archive, archive.Options{
		Compression:    cfg.Archive.Compression,
		MemberPrefix:   cfg.Archive.MemberPrefix,
		MemberSuffix:   cfg.Archive.MemberSuffix,
		BatchSize:      cfg.Archive.BatchSize,
		MaxMemberBytes: cfg.Archive.MaxMemberBytes,
		Logger:         rs.logger,
	})
	if err != nil {
		return res, err
	}
	defer cur.Close()

	delimiter, _ := utf8.DecodeRuneInString(cfg.Archive.Delimiter)
	extractor := archive.NewExtractor(archive.ExtractorOptions{
		Column:     cfg.Archive.Column,
		Delimiter:  delimiter,
		LazyQuotes: cfg.Archive.LazyQuotes,
		Logger:     rs.logger,
	})

	archiveSize, _ := fileutil.FileSize(cfg.Paths.Archive)
	sampler := rs.progress
	sampler.Reset()
	rs.logger.Info("ingest started",
		logging.String(logging.FieldEventType, "ingest_start"),
		logging.String("archive", cfg.Paths.Archive),
		logging.String("archive_size", humanize.IBytes(uint64(max(archiveSize, 0)))),
		logging.String("compression", cfg.Archive.Compression),
		logging.Int("batch_size", cfg.Archive.BatchSize),
	)

	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch := cur.Batch()
		frame, stats, err := extractor.Extract(ctx, batch)
		if err != nil {
			return res, err
		}

		res.Batches++
		res.Members = cur.Included()
		res.SkippedMembers += stats.Skipped
		res.EmptyMembers += stats.Empty
		res.Rows += int64(stats.Rows)

		var partitionPath string
		if frame == nil {
			res.EmptyBatches++
			logging.WarnWithContext(ctx, rs.logger, "batch produced no rows", "batch_empty",
				logging.Int(logging.FieldBatch, batch.Ordinal),
				logging.Int("members", stats.Members),
				logging.Int("skipped_members", stats.Skipped),
				logging.String(logging.FieldErrorHint, "check member warnings above"),
				logging.String(logging.FieldImpact, "no partition written for this batch"),
			)
		} else {
			partitionPath, err = writer.Write(batch.Ordinal, frame)
			if err != nil {
				return res, err
			}
		}
		rs.recordBatch(ctx, ledger.Batch{
			Ordinal:        batch.Ordinal,
			Members:        stats.Members,
			SkippedMembers: stats.Skipped,
			EmptyMembers:   stats.Empty,
			Rows:           stats.Rows,
			PartitionPath:  partitionPath,
		})
		rs.summary.Batches = res.Batches
		rs.summary.Members = res.Members
		rs.summary.SkippedMembers = res.SkippedMembers
		rs.summary.RawRows = res.Rows

		rs.logger.Debug("batch processed",
			logging.Int(logging.FieldBatch, batch.Ordinal),
			logging.Int("members", stats.Members),
			logging.Int("rows", stats.Rows),
			logging.Int("skipped_members", stats.Skipped),
		)
		if sampler.ShouldLog(int(cur.BytesRead()), int(archiveSize)) {
			rs.logger.Info("ingest progress",
				logging.String(logging.FieldEventType, "ingest_progress"),
				logging.Float64("percent", roundPercent(logging.Percent(int(cur.BytesRead()), int(archiveSize)))),
				logging.Int("batches", res.Batches),
				logging.Int("members", res.Members),
				logging.Int64("rows", res.Rows),
			)
		}
	}
	res.SkippedEntries = cur.Skipped()

	// Batches collected before a stream error are already flushed.
	if err := cur.Err(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	merger := partition.NewMerger(cfg.PartitionDir(), cfg.MergedDir(), rs.logger)
	merged, err := merger.Merge(ctx)
	if err != nil {
		return res, err
	}
	res.Partitions = merged.Partitions
	res.MergedPath = merged.Path
	if merged.Rows != res.Rows {
		return res, failure.Wrap(failure.ErrValidation, "ingest", "merge", "merged row count differs from extracted rows", nil)
	}

	rs.logger.Info("ingest completed",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.Int("batches", res.Batches),
		logging.Int("empty_batches", res.EmptyBatches),
		logging.Int("members", res.Members),
		logging.Int("skipped_members", res.SkippedMembers),
		logging.Int("empty_members", res.EmptyMembers),
		logging.Int("skipped_entries", res.SkippedEntries),
		logging.Int64("rows", res.Rows),
		logging.String("merged", res.MergedPath),
		logging.Bool("partition_dir_removed", merged.DirRemoved),
	)
	return res, nil
}

func newProgressSampler() *logging.ProgressSampler {
	return logging.NewProgressSampler(5)
}

func roundPercent(v float64) float64 {
	return float64(int(v*10)) / 10
}
