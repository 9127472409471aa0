package pipeline

import (
	"context"
	"strings"
	"time"

	"metapub/internal/archive"
	"metapub/internal/dedup"
	"metapub/internal/failure"
	"metapub/internal/logging"
	"metapub/internal/output"
	"metapub/internal/partition"
	"metapub/internal/preflight"
	"metapub/internal/publisher"
	"metapub/internal/retry"
)

// maxLoggedRowErrors caps warn-level row error logs per run; later ones are
// logged at debug and counted in the summary.
const maxLoggedRowErrors = 100

// ProcessResult summarizes decoding, dedup and output.
type ProcessResult struct {
	RunID         string
	InputPath     string
	InputRows     int64
	DuplicateRows int64
	RowErrors     int64
	Parsed        int64
	Canonical     int64
	Passes        []dedup.PassStats
	Outputs       output.Paths
}

// Process decodes and deduplicates the merged dataset at inputPath, or at
// the default merged location when inputPath is empty.
func (p *Pipeline) Process(ctx context.Context, inputPath string) (ProcessResult, error) {
	if inputPath == "" {
		inputPath = p.DefaultMergedPath()
	}
	extra := []preflight.Result{preflight.CheckArchive("Merged dataset", inputPath)}

	var res ProcessResult
	id, err := p.execute(ctx, "process", preflight.ScopeProcess, extra, func(ctx context.Context, rs *runState) error {
		var err error
		res, err = p.process(ctx, rs, inputPath)
		return err
	})
	res.RunID = id
	return res, err
}

func (p *Pipeline) process(ctx context.Context, rs *runState, inputPath string) (ProcessResult, error) {
	res := ProcessResult{InputPath: inputPath}
	cfg := p.cfg

	engine, err := dedup.NewEngine(dedup.PassesFromConfig(cfg.Dedup.Passes))
	if err != nil {
		return res, failure.Wrap(failure.ErrConfiguration, "process", "dedup passes", "", err)
	}

	total, err := partition.CountRows(inputPath)
	if err != nil {
		return res, failure.Wrap(failure.ErrIO, "process", "open merged dataset", inputPath, err)
	}
	rs.logger.Info("processing started",
		logging.String(logging.FieldEventType, "process_start"),
		logging.String("input", inputPath),
		logging.Int64("rows", total),
		logging.String("dedup_passes", passList(engine.Passes())),
	)

	parser := publisher.NewParser(cfg.Parse.SecondarySeparator)
	backoff := retry.NewBackoff(
		cfg.Parse.ErrorBackoffThreshold,
		time.Duration(cfg.Parse.ErrorBackoffInitialMS)*time.Millisecond,
		time.Duration(cfg.Parse.ErrorBackoffMaxMS)*time.Millisecond,
	)
	sampler := rs.progress
	sampler.Reset()
	seen := make(map[string]struct{})
	var (
		records []publisher.ParsedRecord
		rowID   int64
	)

	err = partition.ScanFile(ctx, inputPath, 0, func(rows []archive.Record) error {
		for _, row := range rows {
			id := rowID
			rowID++
			if _, dup := seen[row.Publisher]; dup {
				res.DuplicateRows++
				continue
			}
			seen[row.Publisher] = struct{}{}

			rec, err := parser.Parse(id, row.Publisher)
			if err != nil {
				res.RowErrors++
				p.logRowError(ctx, rs, id, res.RowErrors, err)
				if _, err := backoff.Failure(ctx); err != nil {
					return err
				}
				continue
			}
			backoff.Success()
			records = append(records, rec)
		}
		if sampler.ShouldLog(int(rowID), int(total)) {
			rs.logger.Info("processing progress",
				logging.String(logging.FieldEventType, "process_progress"),
				logging.Float64("percent", roundPercent(logging.Percent(int(rowID), int(total)))),
				logging.Int64("rows", rowID),
				logging.Int64("row_errors", res.RowErrors),
			)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, failure.Wrap(failure.ErrIO, "process", "read merged dataset", inputPath, err)
	}
	res.InputRows = rowID
	res.Parsed = int64(len(records))

	deduped := engine.Apply(records)
	res.Passes = deduped.Passes
	res.Canonical = int64(len(deduped.Records))
	for _, ps := range deduped.Passes {
		rs.logger.Info("dedup pass applied",
			logging.String("pass", ps.Pass.String()),
			logging.Int("before", ps.Before),
			logging.Int("after", ps.After),
		)
	}

	rs.summary.RawRows = max(rs.summary.RawRows, res.InputRows)
	rs.summary.DuplicateRows = res.DuplicateRows
	rs.summary.RowErrors = res.RowErrors
	rs.summary.CanonicalRows = res.Canonical

	writer := output.NewWriter(cfg.Paths.OutputDir, cfg.Output.WriteCSV, rs.logger)
	res.Outputs, err = writer.Write(ctx, deduped.Records)
	if err != nil {
		return res, err
	}

	attrs := []logging.Attr{
		logging.Int64("input_rows", res.InputRows),
		logging.Int64("duplicate_rows", res.DuplicateRows),
		logging.Int64("row_errors", res.RowErrors),
		logging.Int64("canonical_rows", res.Canonical),
		logging.String("output", res.Outputs.Parquet),
	}
	if res.Canonical == 0 {
		logging.WarnWithContext(ctx, rs.logger, "canonical dataset is empty", "canonical_empty",
			append(attrs,
				logging.String(logging.FieldErrorHint, "check ingest results; the merged dataset had no usable rows"),
				logging.String(logging.FieldImpact, "downstream clustering receives no publishers"),
			)...,
		)
		return res, nil
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "process_complete"))
	rs.logger.Info("processing completed", logging.Args(attrs...)...)
	return res, nil
}

func (p *Pipeline) logRowError(ctx context.Context, rs *runState, rowID, count int64, err error) {
	attrs := []logging.Attr{
		logging.Int64(logging.FieldRowID, rowID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the raw publisher value for encoding problems"),
		logging.String(logging.FieldImpact, "row dropped from the canonical dataset"),
	}
	if count <= maxLoggedRowErrors {
		logging.WarnWithContext(ctx, rs.logger, "row skipped", "row_parse_failed", attrs...)
		if count == maxLoggedRowErrors {
			rs.logger.Warn("further row errors are logged at debug level",
				logging.String(logging.FieldEventType, "row_errors_suppressed"))
		}
		return
	}
	rs.logger.Debug("row skipped", logging.Args(attrs...)...)
}

func passList(passes []dedup.Pass) string {
	names := make([]string, len(passes))
	for i, pass := range passes {
		names[i] = pass.String()
	}
	return strings.Join(names, " > ")
}
